package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hyeonsoft/billscan/internal/core/domain"
)

func billJobRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "company_id", "original_path", "status", "processing_stage",
		"vendor_name", "bill_type", "amount_due", "due_date", "period_start", "period_end", "customer_number", "payment_account",
		"raw_ocr_text", "ocr_mode", "template_id", "confidence", "extraction", "doc_detected", "preprocess_note",
		"scan_path", "track_a_path", "track_b_path", "last_error_code", "last_error_message", "claimed_at", "created_at", "updated_at",
	})
}

func TestBillRepositoryGetByIDMapsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewBillRepository(db)
	mock.ExpectQuery("FROM bill_jobs").
		WithArgs("missing").
		WillReturnRows(billJobRows())

	_, err = repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBillRepositoryGetByIDScansNullableColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := billJobRows().AddRow(
		"j-1", "c-1", "c-1/j-1/original/bill.jpg", string(domain.StatusNeedsReview), string(domain.StageDone),
		"한국전력공사", string(domain.BillElectricity), int64(45000), "2024-03-25", nil, nil, nil, nil,
		"청구 금액 45,000원", string(domain.OCRModeGeneral), nil, 0.72, []byte(`{"bill_type":"ELECTRICITY"}`), true, nil,
		"c-1/j-1/processed/scan.png", nil, nil, nil, nil, nil, now, now,
	)

	repo := NewBillRepository(db)
	mock.ExpectQuery("FROM bill_jobs").
		WithArgs("j-1").
		WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "j-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if job.Status != domain.StatusNeedsReview || job.Stage != domain.StageDone {
		t.Fatalf("unexpected status/stage: %s/%s", job.Status, job.Stage)
	}
	if job.Fields.BillType == nil || *job.Fields.BillType != domain.BillElectricity {
		t.Fatalf("bill type not scanned: %v", job.Fields.BillType)
	}
	if job.Fields.AmountDue == nil || *job.Fields.AmountDue != 45000 {
		t.Fatalf("amount not scanned: %v", job.Fields.AmountDue)
	}
	if job.Fields.PeriodStart != nil {
		t.Fatalf("expected nil period start, got %q", *job.Fields.PeriodStart)
	}
	if job.OCRMode == nil || *job.OCRMode != domain.OCRModeGeneral {
		t.Fatalf("ocr mode not scanned: %v", job.OCRMode)
	}
	if job.TemplateID != nil {
		t.Fatalf("expected nil template id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBillRepositoryClaimIsConditional(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewBillRepository(db)
	mock.ExpectExec("UPDATE bill_jobs").
		WithArgs("j-1", sqlmock.AnyArg(), string(domain.StatusProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE bill_jobs").
		WithArgs("j-1", sqlmock.AnyArg(), string(domain.StatusProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.Claim(context.Background(), "j-1")
	if err != nil || !claimed {
		t.Fatalf("first claim = (%v, %v), want (true, nil)", claimed, err)
	}
	claimed, err = repo.Claim(context.Background(), "j-1")
	if err != nil || claimed {
		t.Fatalf("second claim = (%v, %v), want (false, nil)", claimed, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBillRepositoryUpdatePatchesOnlyGivenColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewBillRepository(db)
	mock.ExpectExec(`UPDATE bill_jobs SET status = \$2, processing_stage = \$3, updated_at = \$4 WHERE id = \$1`).
		WithArgs("j-1", string(domain.StatusProcessing), string(domain.StageGemini), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Update(context.Background(), "j-1", domain.JobPatch{
		Status: domain.Ptr(domain.StatusProcessing),
		Stage:  domain.Ptr(domain.StageGemini),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBillRepositoryUpdateClearsErrorAndClaim(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewBillRepository(db)
	mock.ExpectExec(`last_error_code = NULL, last_error_message = NULL, claimed_at = NULL`).
		WithArgs("j-1", string(domain.StatusProcessing), string(domain.StageDownload), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Update(context.Background(), "j-1", domain.JobPatch{
		Status:     domain.Ptr(domain.StatusProcessing),
		Stage:      domain.Ptr(domain.StageDownload),
		ClearError: true,
		ClearClaim: true,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBillRepositoryUpdateMissingRowReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewBillRepository(db)
	mock.ExpectExec("UPDATE bill_jobs").
		WithArgs("missing", string(domain.StatusRejected), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Update(context.Background(), "missing", domain.JobPatch{
		Status: domain.Ptr(domain.StatusRejected),
	})
	if !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBillRepositoryListByCompanyFiltersStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := billJobRows().AddRow(
		"j-1", "c-1", "c-1/j-1/original/bill.png", string(domain.StatusConfirmed), string(domain.StageDone),
		nil, nil, nil, nil, nil, nil, nil, nil,
		nil, nil, nil, nil, nil, nil, nil,
		nil, nil, nil, nil, nil, nil, now, now,
	)

	repo := NewBillRepository(db)
	mock.ExpectQuery("FROM bill_jobs").
		WithArgs("c-1", string(domain.StatusConfirmed)).
		WillReturnRows(rows)

	jobs, err := repo.ListByCompany(context.Background(), "c-1", domain.StatusConfirmed)
	if err != nil {
		t.Fatalf("ListByCompany() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "j-1" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
