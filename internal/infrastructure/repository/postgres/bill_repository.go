package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hyeonsoft/billscan/internal/core/domain"
)

type BillRepository struct {
	db *sql.DB
}

func NewBillRepository(db *sql.DB) *BillRepository {
	return &BillRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *BillRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS bill_jobs (
	id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	original_path TEXT NOT NULL,
	status TEXT NOT NULL,
	processing_stage TEXT NOT NULL,
	vendor_name TEXT,
	bill_type TEXT,
	amount_due BIGINT,
	due_date TEXT,
	period_start TEXT,
	period_end TEXT,
	customer_number TEXT,
	payment_account TEXT,
	raw_ocr_text TEXT,
	ocr_mode TEXT,
	template_id TEXT,
	confidence DOUBLE PRECISION,
	extraction JSONB,
	doc_detected BOOLEAN,
	preprocess_note TEXT,
	scan_path TEXT,
	track_a_path TEXT,
	track_b_path TEXT,
	last_error_code TEXT,
	last_error_message TEXT,
	claimed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bill_jobs_company_status ON bill_jobs(company_id, status);
CREATE INDEX IF NOT EXISTS idx_bill_jobs_created_at ON bill_jobs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const billColumns = `id, company_id, original_path, status, processing_stage,
vendor_name, bill_type, amount_due, due_date, period_start, period_end, customer_number, payment_account,
raw_ocr_text, ocr_mode, template_id, confidence, extraction, doc_detected, preprocess_note,
scan_path, track_a_path, track_b_path, last_error_code, last_error_message, claimed_at, created_at, updated_at`

func (r *BillRepository) Create(ctx context.Context, job *domain.BillJob) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO bill_jobs (id, company_id, original_path, status, processing_stage, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		job.ID, job.CompanyID, job.OriginalPath, string(job.Status), string(job.Stage), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bill job: %w", err)
	}
	return nil
}

func (r *BillRepository) GetByID(ctx context.Context, id string) (*domain.BillJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+billColumns+` FROM bill_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get bill job", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan bill job: %w", err)
	}
	return job, nil
}

func (r *BillRepository) ListByCompany(ctx context.Context, companyID string, status domain.JobStatus) ([]domain.BillJob, error) {
	query := `SELECT ` + billColumns + ` FROM bill_jobs WHERE company_id = $1`
	args := []any{companyID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bill jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.BillJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill job row: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Claim atomically takes ownership of one processing run. The conditional
// update is the at-most-once guard: a second near-simultaneous trigger sees
// zero affected rows and backs off.
func (r *BillRepository) Claim(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE bill_jobs
SET claimed_at = $2, updated_at = $2
WHERE id = $1 AND status = $3 AND claimed_at IS NULL
`, id, time.Now().UTC(), string(domain.StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("claim bill job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected == 1, nil
}

// Update applies a partial patch, stamping updated_at. Nil patch members
// leave their columns untouched; a non-nil Fields overwrites all extracted
// field columns verbatim (including nulls), which is what reviewer edits
// need.
func (r *BillRepository) Update(ctx context.Context, id string, patch domain.JobPatch) error {
	set := []string{}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.Stage != nil {
		add("processing_stage", string(*patch.Stage))
	}
	if patch.Fields != nil {
		f := patch.Fields
		add("vendor_name", f.VendorName)
		add("bill_type", billTypeValue(f.BillType))
		add("amount_due", f.AmountDue)
		add("due_date", f.DueDate)
		add("period_start", f.PeriodStart)
		add("period_end", f.PeriodEnd)
		add("customer_number", f.CustomerNumber)
		add("payment_account", f.PaymentAccount)
	}
	if patch.RawOCRText != nil {
		add("raw_ocr_text", *patch.RawOCRText)
	}
	if patch.OCRMode != nil {
		add("ocr_mode", string(*patch.OCRMode))
	}
	if patch.TemplateID != nil {
		add("template_id", *patch.TemplateID)
	}
	if patch.Confidence != nil {
		add("confidence", *patch.Confidence)
	}
	if patch.Extraction != nil {
		add("extraction", []byte(patch.Extraction))
	}
	if patch.DocDetected != nil {
		add("doc_detected", *patch.DocDetected)
	}

	if patch.PreprocessNote != nil {
		add("preprocess_note", *patch.PreprocessNote)
	}
	if patch.ScanPath != nil {
		add("scan_path", *patch.ScanPath)
	}
	if patch.TrackAPath != nil {
		add("track_a_path", *patch.TrackAPath)
	}
	if patch.TrackBPath != nil {
		add("track_b_path", *patch.TrackBPath)
	}
	if patch.LastErrorCode != nil {
		add("last_error_code", *patch.LastErrorCode)
	}
	if patch.LastErrorMessage != nil {
		add("last_error_message", *patch.LastErrorMessage)
	}
	if patch.ClearError {
		set = append(set, "last_error_code = NULL", "last_error_message = NULL")
	}
	if patch.ClearClaim {
		set = append(set, "claimed_at = NULL")
	}

	args = append(args, time.Now().UTC())
	set = append(set, fmt.Sprintf("updated_at = $%d", len(args)))

	query := `UPDATE bill_jobs SET ` + strings.Join(set, ", ") + ` WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update bill job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrJobNotFound, "update bill job", fmt.Errorf("id %s", id))
	}
	return nil
}

func billTypeValue(t *domain.BillType) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.BillJob, error) {
	var job domain.BillJob
	var status, stage string
	var billType, ocrMode sql.NullString
	var extraction []byte

	err := row.Scan(
		&job.ID, &job.CompanyID, &job.OriginalPath, &status, &stage,
		&job.Fields.VendorName, &billType, &job.Fields.AmountDue, &job.Fields.DueDate,
		&job.Fields.PeriodStart, &job.Fields.PeriodEnd, &job.Fields.CustomerNumber, &job.Fields.PaymentAccount,
		&job.RawOCRText, &ocrMode, &job.TemplateID, &job.Confidence, &extraction,
		&job.DocDetected, &job.PreprocessNote,
		&job.ScanPath, &job.TrackAPath, &job.TrackBPath,
		&job.LastErrorCode, &job.LastErrorMessage,
		&job.ClaimedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	job.Stage = domain.Stage(stage)
	if billType.Valid {
		bt := domain.BillType(billType.String)
		job.Fields.BillType = &bt
	}
	if ocrMode.Valid {
		mode := domain.OCRMode(ocrMode.String)
		job.OCRMode = &mode
	}
	if len(extraction) > 0 {
		job.Extraction = extraction
	}
	return &job, nil
}
