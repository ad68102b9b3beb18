package httpadapter

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hyeonsoft/billscan/internal/core/domain"
	"github.com/hyeonsoft/billscan/internal/core/ports"
	"github.com/hyeonsoft/billscan/internal/observability/metrics"
)

const maxUploadBytes = 20 << 20

type Options struct {
	// TriggerSecret guards the internal processing trigger endpoint.
	TriggerSecret string

	RateLimitRPS   float64
	RateLimitBurst int

	MaxConcurrent    int
	BackpressureWait time.Duration

	Metrics *metrics.HTTPServerMetrics
	Service string
}

type Router struct {
	ingestor  ports.BillIngestor
	reader    ports.BillReader
	reviewer  ports.BillReviewer
	exporter  ports.BillExporter
	processor ports.BillProcessor
	opts      Options
}

func NewRouter(
	ingestor ports.BillIngestor,
	reader ports.BillReader,
	reviewer ports.BillReviewer,
	exporter ports.BillExporter,
	processor ports.BillProcessor,
	opts Options,
) *Router {
	return &Router{
		ingestor:  ingestor,
		reader:    reader,
		reviewer:  reviewer,
		exporter:  exporter,
		processor: processor,
		opts:      opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/bills", rt.uploadBill)
	mux.HandleFunc("/v1/bills/", rt.billSubroutes)
	mux.HandleFunc("/v1/companies/", rt.companySubroutes)
	mux.HandleFunc("/internal/v1/process", rt.triggerProcess)

	var handler http.Handler = mux
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(rt.opts.Service, handler)
	}
	if rt.opts.MaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.opts.MaxConcurrent, rt.opts.BackpressureWait)
	}
	if rt.opts.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadBill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	companyID := r.FormValue("company_id")
	job, err := rt.ingestor.Upload(
		r.Context(),
		companyID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordUpload(rt.opts.Service)
	}
	writeJSON(w, http.StatusAccepted, job)
}

// billSubroutes handles /v1/bills/{id} and /v1/bills/{id}/{action}.
func (rt *Router) billSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/bills/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}

	switch action {
	case "":
		rt.getBill(w, r, id)
	case "confirm":
		rt.confirmBill(w, r, id)
	case "reject":
		rt.reviewAction(w, r, id, "reject", rt.reviewer.Reject)
	case "retry":
		rt.reviewAction(w, r, id, "retry", rt.reviewer.Retry)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown resource"})
	}
}

func (rt *Router) getBill(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	job, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) confirmBill(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Fields domain.ExtractedFields `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	job, err := rt.reviewer.Confirm(r.Context(), id, req.Fields)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordReviewAction(rt.opts.Service, "confirm")
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) reviewAction(
	w http.ResponseWriter,
	r *http.Request,
	id, name string,
	fn func(ctx context.Context, jobID string) (*domain.BillJob, error),
) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	job, err := fn(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordReviewAction(rt.opts.Service, name)
	}
	writeJSON(w, http.StatusOK, job)
}

// companySubroutes handles /v1/companies/{id}/bills and
// /v1/companies/{id}/bills/export.
func (rt *Router) companySubroutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/companies/")
	companyID, sub, _ := strings.Cut(rest, "/")
	if companyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "company id is required"})
		return
	}

	switch sub {
	case "bills":
		rt.listBills(w, r, companyID)
	case "bills/export":
		rt.exportBills(w, r, companyID)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown resource"})
	}
}

func (rt *Router) listBills(w http.ResponseWriter, r *http.Request, companyID string) {
	status := domain.JobStatus(r.URL.Query().Get("status"))
	jobs, err := rt.reader.ListByCompany(r.Context(), companyID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []domain.BillJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": jobs})
}

func (rt *Router) exportBills(w http.ResponseWriter, r *http.Request, companyID string) {
	data, err := rt.exporter.ExportConfirmed(r.Context(), companyID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="bills.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// triggerProcess is the internal endpoint the queue-less dev setup and ops
// tooling use to (re)start a pipeline run. It is deliberately synchronous:
// callers own the timeout.
func (rt *Router) triggerProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	secret := r.Header.Get("X-Internal-Secret")
	if rt.opts.TriggerSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(rt.opts.TriggerSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid internal secret"})
		return
	}

	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job_id is required"})
		return
	}

	if err := rt.processor.ProcessByID(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
