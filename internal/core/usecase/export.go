package usecase

import (
	"context"
	"fmt"

	"github.com/hyeonsoft/billscan/internal/core/domain"
	"github.com/hyeonsoft/billscan/internal/core/ports"
)

// SpreadsheetRenderer turns a slice of jobs into workbook bytes.
type SpreadsheetRenderer interface {
	Render(jobs []domain.BillJob) ([]byte, error)
}

type ExportBillsUseCase struct {
	repo     ports.JobRepository
	renderer SpreadsheetRenderer
}

func NewExportBillsUseCase(repo ports.JobRepository, renderer SpreadsheetRenderer) *ExportBillsUseCase {
	return &ExportBillsUseCase{repo: repo, renderer: renderer}
}

// ExportConfirmed renders all confirmed bills of a company as XLSX bytes.
func (uc *ExportBillsUseCase) ExportConfirmed(ctx context.Context, companyID string) ([]byte, error) {
	if companyID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "export bills", fmt.Errorf("empty company id"))
	}

	jobs, err := uc.repo.ListByCompany(ctx, companyID, domain.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("list confirmed bills: %w", err)
	}
	data, err := uc.renderer.Render(jobs)
	if err != nil {
		return nil, fmt.Errorf("render export: %w", err)
	}
	return data, nil
}
