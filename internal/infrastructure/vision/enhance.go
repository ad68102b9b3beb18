package vision

import (
	"image"

	"github.com/disintegration/imaging"
)

// EnhanceTrackA tunes the scan for template OCR: brightness and saturation
// boost, light denoise, then sharpening.
func EnhanceTrackA(img image.Image) *image.NRGBA {
	out := imaging.AdjustSaturation(img, 15)
	out = imaging.AdjustBrightness(out, 8)
	out = imaging.Blur(out, 0.4)
	return imaging.Sharpen(out, 1.2)
}

// EnhanceTrackB tunes the scan for general OCR: grayscale, denoise, then
// adaptive binarization.
func EnhanceTrackB(img image.Image) *image.Gray {
	gray := imaging.Grayscale(img)
	gray = imaging.Blur(gray, 0.6)
	return adaptiveThreshold(toGray(gray), 25, 10)
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma weights.
			lum := (299*int(r>>8) + 587*int(g>>8) + 114*int(bl>>8)) / 1000
			out.Pix[(y-b.Min.Y)*out.Stride+(x-b.Min.X)] = uint8(lum)
		}
	}
	return out
}

// adaptiveThreshold binarizes against the local window mean minus a bias,
// using an integral image so the window size does not affect cost.
func adaptiveThreshold(gray *image.Gray, window, bias int) *image.Gray {
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	integral := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(gray.Pix[y*gray.Stride+x])
			integral[(y+1)*(w+1)+(x+1)] = integral[y*(w+1)+(x+1)] + rowSum
		}
	}

	half := window / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := max(0, x-half), max(0, y-half)
			x1, y1 := min(w-1, x+half), min(h-1, y+half)
			count := int64((x1 - x0 + 1) * (y1 - y0 + 1))

			sum := integral[(y1+1)*(w+1)+(x1+1)] -
				integral[(y0)*(w+1)+(x1+1)] -
				integral[(y1+1)*(w+1)+(x0)] +
				integral[(y0)*(w+1)+(x0)]

			threshold := sum/count - int64(bias)
			if int64(gray.Pix[y*gray.Stride+x]) > threshold {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}
