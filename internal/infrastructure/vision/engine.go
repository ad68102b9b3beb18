package vision

import (
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"
)

// Engine is the process-wide holder of the document detector capability.
// Construction starts detector initialization in the background; callers ask
// for the detector with a bounded wait and get the passthrough fallback when
// it is not ready in time. The engine is read-only after init and needs no
// teardown.
type Engine struct {
	initWait time.Duration
	logger   *slog.Logger

	ready chan struct{}

	mu       sync.RWMutex
	detector DocumentDetector
}

func NewEngine(logger *slog.Logger, initWait time.Duration) *Engine {
	if initWait <= 0 {
		initWait = 3 * time.Second
	}
	e := &Engine{
		initWait: initWait,
		logger:   logger.With("system", "vision"),
		ready:    make(chan struct{}),
		detector: PassthroughDetector{},
	}
	go e.init()
	return e
}

func (e *Engine) init() {
	start := time.Now()
	detector := NewContourDetector()

	// Self-test on a synthetic frame before taking traffic: a detector that
	// cannot find a clean centered rectangle is worse than no detector.
	if _, ok := detector.Detect(selfTestFrame()); !ok {
		e.logger.Warn("contour detector self-test failed; running degraded")
		close(e.ready)
		return
	}

	e.mu.Lock()
	e.detector = detector
	e.mu.Unlock()
	close(e.ready)
	e.logger.Info("document detector ready", "elapsed_ms", time.Since(start).Milliseconds())
}

// Detector returns the document detector, waiting up to the configured init
// timeout on first use. The boolean reports whether the full contour
// detector is active.
func (e *Engine) Detector() (DocumentDetector, bool) {
	select {
	case <-e.ready:
	case <-time.After(e.initWait):
		e.logger.Warn("detector init wait elapsed; using passthrough")
		return PassthroughDetector{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	_, degraded := e.detector.(PassthroughDetector)
	return e.detector, !degraded
}

// selfTestFrame renders a bright rectangle on a dark background covering
// well over the minimum area fraction.
func selfTestFrame() *image.Gray {
	const w, h = 200, 160
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 30; y < h-30; y++ {
		for x := 30; x < w-30; x++ {
			img.SetGray(x, y, color.Gray{Y: 230})
		}
	}
	return img
}
