package usecase

import (
	"context"
	"fmt"

	"github.com/hyeonsoft/billscan/internal/core/domain"
	"github.com/hyeonsoft/billscan/internal/core/ports"
)

type ReviewBillUseCase struct {
	repo     ports.JobRepository
	launcher ports.ProcessLauncher
}

func NewReviewBillUseCase(repo ports.JobRepository, launcher ports.ProcessLauncher) *ReviewBillUseCase {
	return &ReviewBillUseCase{repo: repo, launcher: launcher}
}

// Confirm finalizes a reviewed job with the fields exactly as the reviewer
// submitted them, nulls included. Only jobs waiting in NEEDS_REVIEW can be
// confirmed.
func (uc *ReviewBillUseCase) Confirm(ctx context.Context, jobID string, fields domain.ExtractedFields) (*domain.BillJob, error) {
	job, err := uc.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusNeedsReview {
		return nil, domain.WrapError(domain.ErrAlreadyTerminal, "confirm bill",
			fmt.Errorf("job %s is %s, want %s", jobID, job.Status, domain.StatusNeedsReview))
	}

	patch := domain.JobPatch{
		Status:     domain.Ptr(domain.StatusConfirmed),
		Fields:     &fields,
		ClearError: true,
	}
	if err := uc.repo.Update(ctx, jobID, patch); err != nil {
		return nil, fmt.Errorf("confirm bill job: %w", err)
	}
	return uc.repo.GetByID(ctx, jobID)
}

func (uc *ReviewBillUseCase) Reject(ctx context.Context, jobID string) (*domain.BillJob, error) {
	job, err := uc.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusNeedsReview {
		return nil, domain.WrapError(domain.ErrAlreadyTerminal, "reject bill",
			fmt.Errorf("job %s is %s, want %s", jobID, job.Status, domain.StatusNeedsReview))
	}

	if err := uc.repo.Update(ctx, jobID, domain.JobPatch{Status: domain.Ptr(domain.StatusRejected)}); err != nil {
		return nil, fmt.Errorf("reject bill job: %w", err)
	}
	return uc.repo.GetByID(ctx, jobID)
}

// Retry rewinds a reviewed job to the start of the pipeline and relaunches
// it. The claim and previous diagnostics are cleared so the new run starts
// from a clean slate.
func (uc *ReviewBillUseCase) Retry(ctx context.Context, jobID string) (*domain.BillJob, error) {
	job, err := uc.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusNeedsReview && job.Status != domain.StatusRejected {
		return nil, domain.WrapError(domain.ErrAlreadyTerminal, "retry bill",
			fmt.Errorf("job %s is %s", jobID, job.Status))
	}

	patch := domain.JobPatch{
		Status:     domain.Ptr(domain.StatusProcessing),
		Stage:      domain.Ptr(domain.StageDownload),
		ClearError: true,
		ClearClaim: true,
	}
	if err := uc.repo.Update(ctx, jobID, patch); err != nil {
		return nil, fmt.Errorf("reset bill job: %w", err)
	}

	if err := uc.launcher.Launch(ctx, jobID); err != nil {
		return nil, fmt.Errorf("relaunch processing: %w", err)
	}
	return uc.repo.GetByID(ctx, jobID)
}
