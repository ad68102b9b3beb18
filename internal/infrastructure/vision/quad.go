package vision

import (
	"image"
	"image/color"
	"math"
)

type Point struct {
	X, Y float64
}

// Quad is a document quadrilateral ordered top-left, top-right,
// bottom-right, bottom-left.
type Quad [4]Point

// OrderCorners arranges four arbitrary corner points into Quad order using
// the coordinate sum/difference heuristic: the top-left corner minimizes
// x+y, the bottom-right maximizes it, the top-right minimizes y-x and the
// bottom-left maximizes it.
func OrderCorners(pts [4]Point) Quad {
	var q Quad
	minSum, maxSum := math.Inf(1), math.Inf(-1)
	minDiff, maxDiff := math.Inf(1), math.Inf(-1)

	for _, p := range pts {
		sum := p.X + p.Y
		diff := p.Y - p.X
		if sum < minSum {
			minSum = sum
			q[0] = p
		}
		if sum > maxSum {
			maxSum = sum
			q[2] = p
		}
		if diff < minDiff {
			minDiff = diff
			q[1] = p
		}
		if diff > maxDiff {
			maxDiff = diff
			q[3] = p
		}
	}
	return q
}

// Scale multiplies all corner coordinates by f.
func (q Quad) Scale(f float64) Quad {
	var out Quad
	for i, p := range q {
		out[i] = Point{X: p.X * f, Y: p.Y * f}
	}
	return out
}

// DestSize derives the output rectangle of a warp from the corner
// distances: the longer of the two opposing edges wins on each axis.
func (q Quad) DestSize() (w, h int) {
	top := dist(q[0], q[1])
	bottom := dist(q[3], q[2])
	left := dist(q[0], q[3])
	right := dist(q[1], q[2])

	w = int(math.Round(math.Max(top, bottom)))
	h = int(math.Round(math.Max(left, right)))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// homography holds the eight coefficients of a projective transform
// mapping destination coordinates onto source coordinates.
type homography [8]float64

func (h homography) apply(x, y float64) (float64, float64) {
	d := h[6]*x + h[7]*y + 1
	if d == 0 {
		return 0, 0
	}
	sx := (h[0]*x + h[1]*y + h[2]) / d
	sy := (h[3]*x + h[4]*y + h[5]) / d
	return sx, sy
}

// computeHomography solves for the transform taking the corners of a
// (w x h) rectangle onto the quad corners. Used as the inverse map when
// sampling the warp, so no matrix inversion is needed afterwards.
func computeHomography(q Quad, w, h int) (homography, bool) {
	dst := [4]Point{
		{0, 0},
		{float64(w - 1), 0},
		{float64(w - 1), float64(h - 1)},
		{0, float64(h - 1)},
	}

	// Eight equations in eight unknowns, two per corner pair.
	var m [8][9]float64
	for i := 0; i < 4; i++ {
		x, y := dst[i].X, dst[i].Y
		u, v := q[i].X, q[i].Y
		m[2*i] = [9]float64{x, y, 1, 0, 0, 0, -x * u, -y * u, u}
		m[2*i+1] = [9]float64{0, 0, 0, x, y, 1, -x * v, -y * v, v}
	}

	// Gaussian elimination with partial pivoting.
	for col := 0; col < 8; col++ {
		pivot := col
		for row := col + 1; row < 8; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return homography{}, false
		}
		m[col], m[pivot] = m[pivot], m[col]

		for row := col + 1; row < 8; row++ {
			f := m[row][col] / m[col][col]
			for k := col; k < 9; k++ {
				m[row][k] -= f * m[col][k]
			}
		}
	}

	var sol homography
	for row := 7; row >= 0; row-- {
		v := m[row][8]
		for k := row + 1; k < 8; k++ {
			v -= m[row][k] * sol[k]
		}
		sol[row] = v / m[row][row]
	}
	return sol, true
}

// WarpPerspective maps the quad region of src into an axis-aligned
// rectangle sized from the corner distances, sampling bilinearly.
func WarpPerspective(src image.Image, q Quad) (*image.NRGBA, bool) {
	w, h := q.DestSize()
	hom, ok := computeHomography(q, w, h)
	if !ok {
		return nil, false
	}

	bounds := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := hom.apply(float64(x), float64(y))
			out.SetNRGBA(x, y, sampleBilinear(src, bounds, sx, sy))
		}
	}
	return out, true
}

func sampleBilinear(src image.Image, bounds image.Rectangle, x, y float64) color.NRGBA {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	c00 := nrgbaAt(src, bounds, x0, y0)
	c10 := nrgbaAt(src, bounds, x0+1, y0)
	c01 := nrgbaAt(src, bounds, x0, y0+1)
	c11 := nrgbaAt(src, bounds, x0+1, y0+1)

	lerp := func(a, b uint8, t float64) float64 {
		return float64(a) + (float64(b)-float64(a))*t
	}
	blend := func(a, b, c, d uint8) uint8 {
		top := lerp(a, b, fx)
		bot := lerp(c, d, fx)
		return uint8(math.Round(top + (bot-top)*fy))
	}

	return color.NRGBA{
		R: blend(c00.R, c10.R, c01.R, c11.R),
		G: blend(c00.G, c10.G, c01.G, c11.G),
		B: blend(c00.B, c10.B, c01.B, c11.B),
		A: 255,
	}
}

func nrgbaAt(src image.Image, bounds image.Rectangle, x, y int) color.NRGBA {
	if x < bounds.Min.X {
		x = bounds.Min.X
	}
	if x >= bounds.Max.X {
		x = bounds.Max.X - 1
	}
	if y < bounds.Min.Y {
		y = bounds.Min.Y
	}
	if y >= bounds.Max.Y {
		y = bounds.Max.Y - 1
	}
	r, g, b, _ := src.At(x, y).RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255}
}
