package vision

import (
	"image"
	"math"
	"sort"
)

// DocumentDetector finds the document quadrilateral in a grayscale working
// copy. Implementations must be safe for concurrent use.
type DocumentDetector interface {
	Detect(gray *image.Gray) (Quad, bool)
}

// PassthroughDetector never finds a document. It stands in when the contour
// detector is unavailable so preprocessing degrades instead of failing.
type PassthroughDetector struct{}

func (PassthroughDetector) Detect(*image.Gray) (Quad, bool) {
	return Quad{}, false
}

// ContourDetector runs the edge -> dilate -> component -> hull -> polygon
// approximation chain on the working copy.
type ContourDetector struct {
	// EdgeThreshold is the minimum Sobel gradient magnitude kept as an edge.
	EdgeThreshold uint8
	// MinAreaFrac is the minimum quad area as a fraction of the frame.
	MinAreaFrac float64
}

func NewContourDetector() *ContourDetector {
	return &ContourDetector{
		EdgeThreshold: 60,
		MinAreaFrac:   0.10,
	}
}

func (d *ContourDetector) Detect(gray *image.Gray) (Quad, bool) {
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	if w < 8 || h < 8 {
		return Quad{}, false
	}

	edges := sobelEdges(gray, d.EdgeThreshold)
	dilate(edges, w, h)
	dilate(edges, w, h)

	pts := largestComponent(edges, w, h)
	if len(pts) < 16 {
		return Quad{}, false
	}

	hull := convexHull(pts)
	if len(hull) < 4 {
		return Quad{}, false
	}

	poly := approxPolygon(hull, 0.02*perimeter(hull))
	if len(poly) != 4 {
		return Quad{}, false
	}

	var corners [4]Point
	copy(corners[:], poly)
	q := OrderCorners(corners)

	if polygonArea(q[:]) < d.MinAreaFrac*float64(w)*float64(h) {
		return Quad{}, false
	}
	return q, true
}

// sobelEdges returns a binary mask (0/1) of pixels whose gradient magnitude
// exceeds the threshold.
func sobelEdges(gray *image.Gray, threshold uint8) []uint8 {
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	out := make([]uint8, w*h)

	at := func(x, y int) int {
		return int(gray.GrayAt(gray.Bounds().Min.X+x, gray.Bounds().Min.Y+y).Y)
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			mag := math.Hypot(float64(gx), float64(gy)) / 4
			if mag > float64(threshold) {
				out[y*w+x] = 1
			}
		}
	}
	return out
}

// dilate grows the mask by one pixel with a 3x3 structuring element.
func dilate(mask []uint8, w, h int) {
	src := make([]uint8, len(mask))
	copy(src, mask)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if src[y*w+x] != 0 {
				continue
			}
			for dy := -1; dy <= 1 && mask[y*w+x] == 0; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ny, nx := y+dy, x+dx
					if ny < 0 || ny >= h || nx < 0 || nx >= w {
						continue
					}
					if src[ny*w+nx] != 0 {
						mask[y*w+x] = 1
						break
					}
				}
			}
		}
	}
}

// largestComponent labels 8-connected components of the mask and returns
// the pixel coordinates of the biggest one.
func largestComponent(mask []uint8, w, h int) []Point {
	visited := make([]bool, w*h)
	var best []Point
	queue := make([]int, 0, 1024)

	for start := range mask {
		if mask[start] == 0 || visited[start] {
			continue
		}
		queue = queue[:0]
		queue = append(queue, start)
		visited[start] = true
		comp := []Point{}

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := idx%w, idx/w
			comp = append(comp, Point{X: float64(x), Y: float64(y)})

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if mask[nidx] != 0 && !visited[nidx] {
						visited[nidx] = true
						queue = append(queue, nidx)
					}
				}
			}
		}

		if len(comp) > len(best) {
			best = comp
		}
	}
	return best
}

// convexHull computes the hull with the monotone chain algorithm.
func convexHull(pts []Point) []Point {
	if len(pts) < 3 {
		return pts
	}
	sorted := make([]Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	cross := func(o, a, b Point) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	var lower, upper []Point
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

// approxPolygon reduces a closed polyline with Douglas-Peucker.
func approxPolygon(pts []Point, epsilon float64) []Point {
	if len(pts) <= 4 || epsilon <= 0 {
		return pts
	}

	// Split at the two points farthest apart so each half is an open chain.
	ai, bi := farthestPair(pts)
	if ai > bi {
		ai, bi = bi, ai
	}
	first := douglasPeucker(pts[ai:bi+1], epsilon)
	second := douglasPeucker(append(append([]Point{}, pts[bi:]...), pts[:ai+1]...), epsilon)

	out := make([]Point, 0, len(first)+len(second)-2)
	out = append(out, first...)
	if len(second) > 2 {
		out = append(out, second[1:len(second)-1]...)
	}
	return out
}

func farthestPair(pts []Point) (int, int) {
	ai, bi := 0, 0
	best := -1.0
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			if d := dist(pts[i], pts[j]); d > best {
				best = d
				ai, bi = i, j
			}
		}
	}
	return ai, bi
}

func douglasPeucker(pts []Point, epsilon float64) []Point {
	if len(pts) < 3 {
		return pts
	}
	idx, maxDist := 0, 0.0
	a, b := pts[0], pts[len(pts)-1]
	for i := 1; i < len(pts)-1; i++ {
		if d := pointLineDist(pts[i], a, b); d > maxDist {
			maxDist = d
			idx = i
		}
	}
	if maxDist <= epsilon {
		return []Point{a, b}
	}
	left := douglasPeucker(pts[:idx+1], epsilon)
	right := douglasPeucker(pts[idx:], epsilon)
	return append(left[:len(left)-1], right...)
}

func pointLineDist(p, a, b Point) float64 {
	l := dist(a, b)
	if l == 0 {
		return dist(p, a)
	}
	return math.Abs((b.X-a.X)*(a.Y-p.Y)-(a.X-p.X)*(b.Y-a.Y)) / l
}

func perimeter(pts []Point) float64 {
	total := 0.0
	for i := range pts {
		total += dist(pts[i], pts[(i+1)%len(pts)])
	}
	return total
}

func polygonArea(pts []Point) float64 {
	area := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		area += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(area) / 2
}
