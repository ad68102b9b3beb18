package ports

import (
	"context"
	"io"

	"github.com/hyeonsoft/billscan/internal/core/domain"
)

// JobRepository persists and reads bill job state.
type JobRepository interface {
	Create(ctx context.Context, job *domain.BillJob) error
	GetByID(ctx context.Context, id string) (*domain.BillJob, error)
	// Update applies a partial patch and stamps updated_at.
	Update(ctx context.Context, id string, patch domain.JobPatch) error
	// Claim atomically takes ownership of a PROCESSING job for one run.
	// It returns false when the job is terminal or already claimed.
	Claim(ctx context.Context, id string) (bool, error)
	ListByCompany(ctx context.Context, companyID string, status domain.JobStatus) ([]domain.BillJob, error)
}

// BlobStore stores original and processed bill images. Upload has upsert
// semantics; keys are namespaced per company/job.
type BlobStore interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// ImagePreprocessor rectifies a photographed bill and produces the OCR
// enhancement tracks. It degrades instead of failing when no document
// boundary can be found.
type ImagePreprocessor interface {
	Process(ctx context.Context, original []byte) (domain.PreprocessResult, error)
}

// TextRecognizer calls the external OCR service in one of its two modes.
type TextRecognizer interface {
	// TemplateConfigured reports whether the template endpoint and at least
	// one template id are configured.
	TemplateConfigured() bool
	RecognizeTemplate(ctx context.Context, image []byte) (domain.OCRResult, error)
	RecognizeGeneral(ctx context.Context, image []byte) (domain.OCRResult, error)
}

// FieldExtractor turns OCR text into a schema-constrained candidate record.
type FieldExtractor interface {
	Extract(ctx context.Context, ocrText string, fieldHints []string) (domain.Candidate, error)
}

// ProcessQueue publishes/consumes job-queued events.
type ProcessQueue interface {
	PublishJobQueued(ctx context.Context, jobID string) error
	SubscribeJobQueued(ctx context.Context, handler func(context.Context, string) error) error
}

// ProcessLauncher kicks off asynchronous processing of a job. Backed by the
// queue in deployments, by a delayed in-process call in local/dev mode.
type ProcessLauncher interface {
	Launch(ctx context.Context, jobID string) error
}
