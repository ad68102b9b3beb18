package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyeonsoft/billscan/internal/core/domain"
	"github.com/hyeonsoft/billscan/internal/core/ports"
)

type UploadBillUseCase struct {
	repo     ports.JobRepository
	storage  ports.BlobStore
	launcher ports.ProcessLauncher
}

func NewUploadBillUseCase(
	repo ports.JobRepository,
	storage ports.BlobStore,
	launcher ports.ProcessLauncher,
) *UploadBillUseCase {
	return &UploadBillUseCase{
		repo:     repo,
		storage:  storage,
		launcher: launcher,
	}
}

// Upload stores the original image, creates the job record in its initial
// state and hands processing off to the launcher. The job id is returned to
// the client immediately for status polling.
func (uc *UploadBillUseCase) Upload(
	ctx context.Context,
	companyID, filename, contentType string,
	body io.Reader,
) (*domain.BillJob, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload bill", fmt.Errorf("empty company id"))
	}

	id := uuid.NewString()
	key := domain.OriginalKey(companyID, id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Upload(ctx, key, body, contentType); err != nil {
		return nil, fmt.Errorf("store original image: %w", err)
	}

	job := &domain.BillJob{
		ID:           id,
		CompanyID:    companyID,
		OriginalPath: key,
		Status:       domain.StatusProcessing,
		Stage:        domain.StageDownload,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create bill job: %w", err)
	}

	if err := uc.launcher.Launch(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("launch processing: %w", err)
	}
	return job, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "bill.bin"
	}
	return base
}
