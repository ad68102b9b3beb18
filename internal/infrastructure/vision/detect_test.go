package vision

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func syntheticDocument(w, h, inset int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 20})
		}
	}
	for y := inset; y < h-inset; y++ {
		for x := inset; x < w-inset; x++ {
			img.SetGray(x, y, color.Gray{Y: 235})
		}
	}
	return img
}

func TestContourDetectorFindsCenteredRectangle(t *testing.T) {
	img := syntheticDocument(400, 300, 50)

	quad, ok := NewContourDetector().Detect(img)
	if !ok {
		t.Fatalf("expected detection on clean synthetic document")
	}

	// Corners should land near the rectangle boundary (dilation shifts them
	// outward by a couple of pixels).
	wantCorners := [4]Point{{50, 50}, {349, 50}, {349, 249}, {50, 249}}
	for i, want := range wantCorners {
		got := quad[i]
		if math.Abs(got.X-want.X) > 8 || math.Abs(got.Y-want.Y) > 8 {
			t.Fatalf("corner %d = %+v, want near %+v", i, got, want)
		}
	}
}

func TestContourDetectorRejectsSmallRegion(t *testing.T) {
	// Rectangle covering well under 10% of the frame.
	img := image.NewGray(image.Rect(0, 0, 400, 300))
	for y := 140; y < 170; y++ {
		for x := 180; x < 230; x++ {
			img.SetGray(x, y, color.Gray{Y: 235})
		}
	}

	if _, ok := NewContourDetector().Detect(img); ok {
		t.Fatalf("expected no detection for region below the area floor")
	}
}

func TestContourDetectorRejectsFlatFrame(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	if _, ok := NewContourDetector().Detect(img); ok {
		t.Fatalf("expected no detection on a featureless frame")
	}
}

func TestPassthroughDetectorNeverDetects(t *testing.T) {
	if _, ok := (PassthroughDetector{}).Detect(syntheticDocument(200, 200, 30)); ok {
		t.Fatalf("passthrough must not detect")
	}
}
