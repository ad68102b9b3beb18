package usecase

import (
	"context"
	"fmt"

	"github.com/hyeonsoft/billscan/internal/core/domain"
	"github.com/hyeonsoft/billscan/internal/core/ports"
)

// ReadBillUseCase is the read model behind status polling and review lists.
type ReadBillUseCase struct {
	repo ports.JobRepository
}

func NewReadBillUseCase(repo ports.JobRepository) *ReadBillUseCase {
	return &ReadBillUseCase{repo: repo}
}

func (uc *ReadBillUseCase) GetByID(ctx context.Context, id string) (*domain.BillJob, error) {
	return uc.repo.GetByID(ctx, id)
}

func (uc *ReadBillUseCase) ListByCompany(ctx context.Context, companyID string, status domain.JobStatus) ([]domain.BillJob, error) {
	if companyID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list bills", fmt.Errorf("empty company id"))
	}
	return uc.repo.ListByCompany(ctx, companyID, status)
}
