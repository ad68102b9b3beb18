// Package vision implements the geometric preprocessor: EXIF auto-rotation,
// document contour detection on a bounded working copy, perspective
// rectification, and the two OCR enhancement tracks. Everything is pure Go
// raster work; there is no native vision dependency to load, only the engine
// readiness gate that keeps the pipeline from blocking on a slow start.
package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/hyeonsoft/billscan/internal/core/domain"
)

const (
	// DefaultWorkDim bounds the longest side of the contour-search copy.
	DefaultWorkDim = 1000

	noteContourNotFound  = "document contour not found"
	noteDetectorDegraded = "document detector unavailable; contour search skipped"
)

// Preprocessor turns one photographed bill into the scan plus track A/B
// variants. It never fails on detection problems, only on undecodable input.
type Preprocessor struct {
	engine  *Engine
	workDim int
}

func NewPreprocessor(engine *Engine, workDim int) *Preprocessor {
	if workDim <= 0 {
		workDim = DefaultWorkDim
	}
	return &Preprocessor{engine: engine, workDim: workDim}
}

func (p *Preprocessor) Process(ctx context.Context, original []byte) (domain.PreprocessResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.PreprocessResult{}, err
	}

	decoded, _, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		return domain.PreprocessResult{}, domain.WrapError(domain.ErrInvalidInput, "decode bill image", err)
	}
	oriented := AutoOrient(original, decoded)

	scan := oriented
	docDetected := false
	note := ""

	detector, full := p.engine.Detector()
	if !full {
		note = noteDetectorDegraded
	}

	if full {
		working, scale := p.workingCopy(oriented)
		if quad, ok := detector.Detect(working); ok {
			if warped, ok := WarpPerspective(oriented, quad.Scale(1/scale)); ok {
				scan = warped
				docDetected = true
			}
		}
		if !docDetected {
			note = noteContourNotFound
		}
	}

	result := domain.PreprocessResult{
		DocDetected: docDetected,
		Note:        note,
	}
	if result.Scan, err = encodePNG(scan); err != nil {
		return domain.PreprocessResult{}, err
	}
	if result.TrackA, err = encodePNG(EnhanceTrackA(scan)); err != nil {
		return domain.PreprocessResult{}, err
	}
	if result.TrackB, err = encodePNG(EnhanceTrackB(scan)); err != nil {
		return domain.PreprocessResult{}, err
	}
	return result, nil
}

// workingCopy downscales to the bounded dimension and converts to grayscale
// for the contour search. Returns the scale factor applied to each axis so
// detected corners can be mapped back onto the full-resolution image.
func (p *Preprocessor) workingCopy(img image.Image) (*image.Gray, float64) {
	b := img.Bounds()
	longest := b.Dx()
	if b.Dy() > longest {
		longest = b.Dy()
	}

	scale := 1.0
	dst := b
	if longest > p.workDim {
		scale = float64(p.workDim) / float64(longest)
		dst = image.Rect(0, 0, int(float64(b.Dx())*scale), int(float64(b.Dy())*scale))
	}

	small := image.NewRGBA(image.Rect(0, 0, dst.Dx(), dst.Dy()))
	xdraw.ApproxBiLinear.Scale(small, small.Bounds(), img, b, xdraw.Src, nil)
	return toGray(small), scale
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
