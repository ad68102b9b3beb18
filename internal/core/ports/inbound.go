package ports

import (
	"context"
	"io"

	"github.com/hyeonsoft/billscan/internal/core/domain"
)

// BillIngestor is the inbound contract for bill upload orchestration.
type BillIngestor interface {
	Upload(ctx context.Context, companyID, filename, contentType string, body io.Reader) (*domain.BillJob, error)
}

// BillProcessor is the inbound contract for asynchronous pipeline runs.
// Invoking it on a terminal job is a no-op.
type BillProcessor interface {
	ProcessByID(ctx context.Context, jobID string) error
}

// BillReviewer covers the human review actions on a processed job.
type BillReviewer interface {
	// Confirm persists the reviewer-edited fields verbatim and finalizes the job.
	Confirm(ctx context.Context, jobID string, fields domain.ExtractedFields) (*domain.BillJob, error)
	Reject(ctx context.Context, jobID string) (*domain.BillJob, error)
	// Retry resets the job to PROCESSING/DOWNLOAD and relaunches the pipeline.
	Retry(ctx context.Context, jobID string) (*domain.BillJob, error)
}

// BillReader is the inbound read model for job state and review polling.
type BillReader interface {
	GetByID(ctx context.Context, id string) (*domain.BillJob, error)
	ListByCompany(ctx context.Context, companyID string, status domain.JobStatus) ([]domain.BillJob, error)
}

// BillExporter renders confirmed bills of a company as a spreadsheet.
type BillExporter interface {
	ExportConfirmed(ctx context.Context, companyID string) ([]byte, error)
}
