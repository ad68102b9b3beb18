package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyeonsoft/billscan/internal/core/domain"
)

type ingestorFake struct {
	job *domain.BillJob
	err error

	gotCompanyID string
	gotFilename  string
}

func (f *ingestorFake) Upload(_ context.Context, companyID, filename, _ string, body io.Reader) (*domain.BillJob, error) {
	f.gotCompanyID = companyID
	f.gotFilename = filename
	_, _ = io.ReadAll(body)
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

type readerFake struct {
	job  *domain.BillJob
	jobs []domain.BillJob
	err  error
}

func (f *readerFake) GetByID(context.Context, string) (*domain.BillJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

func (f *readerFake) ListByCompany(context.Context, string, domain.JobStatus) ([]domain.BillJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.jobs, nil
}

type reviewerFake struct {
	job *domain.BillJob
	err error

	confirmFields *domain.ExtractedFields
	rejected      bool
	retried       bool
}

func (f *reviewerFake) Confirm(_ context.Context, _ string, fields domain.ExtractedFields) (*domain.BillJob, error) {
	f.confirmFields = &fields
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

func (f *reviewerFake) Reject(context.Context, string) (*domain.BillJob, error) {
	f.rejected = true
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

func (f *reviewerFake) Retry(context.Context, string) (*domain.BillJob, error) {
	f.retried = true
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

type exporterFake struct {
	data []byte
	err  error
}

func (f *exporterFake) ExportConfirmed(context.Context, string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type processorFake struct {
	processed []string
	err       error
}

func (f *processorFake) ProcessByID(_ context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.processed = append(f.processed, jobID)
	return nil
}

func sampleJob() *domain.BillJob {
	return &domain.BillJob{
		ID:        "j-1",
		CompanyID: "c-1",
		Status:    domain.StatusProcessing,
		Stage:     domain.StageDownload,
	}
}

func newTestRouter(opts Options, overrides ...func(*Router)) *Router {
	rt := NewRouter(
		&ingestorFake{job: sampleJob()},
		&readerFake{job: sampleJob()},
		&reviewerFake{job: sampleJob()},
		&exporterFake{data: []byte("xlsx")},
		&processorFake{},
		opts,
	)
	for _, fn := range overrides {
		fn(rt)
	}
	return rt
}

func multipartUpload(t *testing.T, companyID string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if companyID != "" {
		if err := mw.WriteField("company_id", companyID); err != nil {
			t.Fatalf("write company_id: %v", err)
		}
	}
	part, err := mw.CreateFormFile("file", "bill.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("jpeg-bytes")); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadBillReturnsAcceptedJob(t *testing.T) {
	ingestor := &ingestorFake{job: sampleJob()}
	rt := newTestRouter(Options{}, func(r *Router) { r.ingestor = ingestor })
	handler := rt.Handler()

	body, contentType := multipartUpload(t, "c-1")
	req := httptest.NewRequest(http.MethodPost, "/v1/bills", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	if ingestor.gotCompanyID != "c-1" || ingestor.gotFilename != "bill.jpg" {
		t.Fatalf("ingestor got company=%q file=%q", ingestor.gotCompanyID, ingestor.gotFilename)
	}

	var job domain.BillJob
	if err := json.Unmarshal(res.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if job.ID != "j-1" || job.Status != domain.StatusProcessing {
		t.Fatalf("unexpected job payload: %+v", job)
	}
}

func TestUploadBillWithoutFileIs400(t *testing.T) {
	handler := newTestRouter(Options{}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/bills", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestGetBillMapsNotFoundTo404(t *testing.T) {
	rt := newTestRouter(Options{}, func(r *Router) {
		r.reader = &readerFake{err: domain.WrapError(domain.ErrJobNotFound, "get bill job", fmt.Errorf("id missing"))}
	})
	handler := rt.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/bills/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}

func TestConfirmBillPassesFieldsThrough(t *testing.T) {
	reviewer := &reviewerFake{job: sampleJob()}
	rt := newTestRouter(Options{}, func(r *Router) { r.reviewer = reviewer })
	handler := rt.Handler()

	payload := `{"fields":{"vendor_name":"한국전력공사","amount_due":47500,"bill_type":"ELECTRICITY","due_date":null,"billing_period_start":null,"billing_period_end":null,"customer_number":null,"payment_account":null}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/bills/j-1/confirm", bytes.NewBufferString(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	if reviewer.confirmFields == nil || reviewer.confirmFields.AmountDue == nil || *reviewer.confirmFields.AmountDue != 47500 {
		t.Fatalf("confirm fields = %+v", reviewer.confirmFields)
	}
	if reviewer.confirmFields.DueDate != nil {
		t.Fatalf("null due date should stay nil")
	}
}

func TestConfirmTerminalJobIs409(t *testing.T) {
	rt := newTestRouter(Options{}, func(r *Router) {
		r.reviewer = &reviewerFake{err: domain.WrapError(domain.ErrAlreadyTerminal, "confirm bill", fmt.Errorf("job is CONFIRMED"))}
	})
	handler := rt.Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/bills/j-1/confirm", bytes.NewBufferString(`{"fields":{}}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", res.Code)
	}
}

func TestListBillsReturnsEmptyArrayNotNull(t *testing.T) {
	handler := newTestRouter(Options{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/companies/c-1/bills?status=NEEDS_REVIEW", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(resp["bills"]) != "[]" {
		t.Fatalf("bills = %s, want []", resp["bills"])
	}
}

func TestExportBillsSetsSpreadsheetHeaders(t *testing.T) {
	handler := newTestRouter(Options{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/companies/c-1/bills/export", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("content type = %q", ct)
	}
	if res.Body.String() != "xlsx" {
		t.Fatalf("body = %q", res.Body.String())
	}
}

func TestTriggerProcessRequiresSecret(t *testing.T) {
	processor := &processorFake{}
	rt := newTestRouter(Options{TriggerSecret: "s3cret"}, func(r *Router) { r.processor = processor })
	handler := rt.Handler()

	req := httptest.NewRequest(http.MethodPost, "/internal/v1/process?job_id=j-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status without secret = %d, want 401", res.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/v1/process?job_id=j-1", nil)
	req.Header.Set("X-Internal-Secret", "s3cret")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status with secret = %d, body %s", res.Code, res.Body.String())
	}
	if len(processor.processed) != 1 || processor.processed[0] != "j-1" {
		t.Fatalf("processed = %v", processor.processed)
	}
}

func TestTriggerProcessDisabledWithoutConfiguredSecret(t *testing.T) {
	handler := newTestRouter(Options{}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/internal/v1/process?job_id=j-1", nil)
	req.Header.Set("X-Internal-Secret", "")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 when no secret configured", res.Code)
	}
}
