package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type JobStatus string

const (
	StatusProcessing  JobStatus = "PROCESSING"
	StatusNeedsReview JobStatus = "NEEDS_REVIEW"
	StatusConfirmed   JobStatus = "CONFIRMED"
	StatusRejected    JobStatus = "REJECTED"
)

// Terminal reports whether a job in this status must not be advanced again.
func (s JobStatus) Terminal() bool {
	return s == StatusNeedsReview || s == StatusConfirmed || s == StatusRejected
}

type Stage string

const (
	StageDownload         Stage = "DOWNLOAD"
	StagePreprocessCV     Stage = "PREPROCESS_CV"
	StagePreprocessUpload Stage = "PREPROCESS_UPLOAD"
	StageTemplateOCR      Stage = "TEMPLATE_OCR"
	StageGeneralOCR       Stage = "GENERAL_OCR"
	StageGemini           Stage = "GEMINI"
	StageValidate         Stage = "VALIDATE"
	StageDone             Stage = "DONE"
)

var stageOrder = map[Stage]int{
	StageDownload:         0,
	StagePreprocessCV:     1,
	StagePreprocessUpload: 2,
	StageTemplateOCR:      3,
	StageGeneralOCR:       4,
	StageGemini:           5,
	StageValidate:         6,
	StageDone:             7,
}

// Ordinal returns the position of the stage in the fixed pipeline order.
// Unknown stages sort before DOWNLOAD.
func (s Stage) Ordinal() int {
	ord, ok := stageOrder[s]
	if !ok {
		return -1
	}
	return ord
}

func (s Stage) Before(other Stage) bool {
	return s.Ordinal() < other.Ordinal()
}

type BillType string

const (
	BillElectricity BillType = "ELECTRICITY"
	BillWater       BillType = "WATER"
	BillGas         BillType = "GAS"
	BillTelecom     BillType = "TELECOM"
	BillTax         BillType = "TAX"
	BillEtc         BillType = "ETC"
)

// ParseBillType maps arbitrary input onto the closed enum, defaulting to ETC.
func ParseBillType(s string) BillType {
	switch BillType(s) {
	case BillElectricity, BillWater, BillGas, BillTelecom, BillTax:
		return BillType(s)
	default:
		return BillEtc
	}
}

type OCRMode string

const (
	OCRModeTemplate OCRMode = "TEMPLATE"
	OCRModeGeneral  OCRMode = "GENERAL"
)

// ExtractedFields holds the normalized bill fields. Every field is nullable
// until extraction (or a human reviewer) fills it.
type ExtractedFields struct {
	VendorName     *string   `json:"vendor_name"`
	BillType       *BillType `json:"bill_type"`
	AmountDue      *int64    `json:"amount_due"`
	DueDate        *string   `json:"due_date"`
	PeriodStart    *string   `json:"billing_period_start"`
	PeriodEnd      *string   `json:"billing_period_end"`
	CustomerNumber *string   `json:"customer_number"`
	PaymentAccount *string   `json:"payment_account"`
}

// Evidence carries verbatim OCR-text snippets the extractor cites per field.
type Evidence struct {
	VendorName    string `json:"vendor_name,omitempty"`
	AmountDue     string `json:"amount_due,omitempty"`
	DueDate       string `json:"due_date,omitempty"`
	BillingPeriod string `json:"billing_period,omitempty"`
}

// Candidate is the extractor's raw output before triage normalization.
// String fields keep whatever the model produced; triage coerces them.
type Candidate struct {
	BillType       string          `json:"bill_type"`
	VendorName     string          `json:"vendor_name"`
	AmountDue      *float64        `json:"amount_due"`
	DueDate        string          `json:"due_date"`
	PeriodStart    string          `json:"billing_period_start"`
	PeriodEnd      string          `json:"billing_period_end"`
	CustomerNumber string          `json:"customer_number"`
	PaymentAccount string          `json:"payment_account"`
	Evidence       Evidence        `json:"evidence"`
	Confidence     float64         `json:"confidence"`
	Raw            json.RawMessage `json:"-"`
}

// OCRResult is the normalized output of one recognition call.
type OCRResult struct {
	Text          string
	MatchedFields int
	TemplateID    string
	Mode          OCRMode
	Raw           json.RawMessage
}

// PreprocessResult carries the three raster variants produced by the
// geometric preprocessor, all PNG-encoded.
type PreprocessResult struct {
	Scan        []byte
	TrackA      []byte
	TrackB      []byte
	DocDetected bool
	Note        string
}

type BillJob struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"company_id"`
	OriginalPath string    `json:"original_path"`
	Status       JobStatus `json:"status"`
	Stage        Stage     `json:"processing_stage"`

	Fields ExtractedFields `json:"fields"`

	RawOCRText *string         `json:"raw_ocr_text,omitempty"`
	OCRMode    *OCRMode        `json:"ocr_mode,omitempty"`
	TemplateID *string         `json:"template_id,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Extraction json.RawMessage `json:"extraction,omitempty"`

	DocDetected    *bool   `json:"doc_detected,omitempty"`
	PreprocessNote *string `json:"preprocess_note,omitempty"`

	ScanPath   *string `json:"scan_path,omitempty"`
	TrackAPath *string `json:"track_a_path,omitempty"`
	TrackBPath *string `json:"track_b_path,omitempty"`

	LastErrorCode    *string `json:"last_error_code,omitempty"`
	LastErrorMessage *string `json:"last_error_message,omitempty"`

	ClaimedAt *time.Time `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ProcessedKey returns the blob key for a processed variant of this job.
// The job id segments the namespace so concurrent jobs never collide.
func (j *BillJob) ProcessedKey(name string) string {
	return fmt.Sprintf("%s/%s/processed/%s", j.CompanyID, j.ID, name)
}

// OriginalKey returns the blob key for the uploaded source image.
func OriginalKey(companyID, jobID, filename string) string {
	return fmt.Sprintf("%s/%s/original/%s", companyID, jobID, filename)
}

// JobPatch describes a partial update of a job row. Nil fields are left
// untouched; the repository always stamps updated_at.
type JobPatch struct {
	Status *JobStatus
	Stage  *Stage

	Fields *ExtractedFields

	RawOCRText *string
	OCRMode    *OCRMode
	TemplateID *string
	Confidence *float64
	Extraction json.RawMessage

	DocDetected    *bool
	PreprocessNote *string

	ScanPath   *string
	TrackAPath *string
	TrackBPath *string

	LastErrorCode    *string
	LastErrorMessage *string

	// ClearError nulls last_error_code/message so a clean run does not keep
	// diagnostics from a previous attempt.
	ClearError bool
	// ClearClaim releases the processing claim (used by retry).
	ClearClaim bool
}

// Ptr is a convenience for building patches and nullable fields.
func Ptr[T any](v T) *T { return &v }
