package launcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyeonsoft/billscan/internal/core/ports"
)

// QueueLauncher hands the job off to the worker pool through the message
// queue. This is the production path.
type QueueLauncher struct {
	queue ports.ProcessQueue
}

func NewQueueLauncher(queue ports.ProcessQueue) *QueueLauncher {
	return &QueueLauncher{queue: queue}
}

func (l *QueueLauncher) Launch(ctx context.Context, jobID string) error {
	return l.queue.PublishJobQueued(ctx, jobID)
}

// InProcessLauncher runs the pipeline inside the api process after a short
// delay, detached from the upload request. Development fallback for setups
// without a queue; a crash mid-run leaves the job in PROCESSING like any
// other abandoned claim.
type InProcessLauncher struct {
	processor ports.BillProcessor
	delay     time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

func NewInProcessLauncher(processor ports.BillProcessor, delay time.Duration, logger *slog.Logger) *InProcessLauncher {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &InProcessLauncher{
		processor: processor,
		delay:     delay,
		timeout:   5 * time.Minute,
		logger:    logger,
	}
}

func (l *InProcessLauncher) Launch(_ context.Context, jobID string) error {
	go func() {
		time.Sleep(l.delay)

		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		if err := l.processor.ProcessByID(ctx, jobID); err != nil {
			l.logger.Error("in-process pipeline run failed", "job_id", jobID, "error", err)
		}
	}()
	return nil
}
