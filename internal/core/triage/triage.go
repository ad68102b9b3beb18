// Package triage normalizes extractor candidates and scores their
// trustworthiness. The penalty structure only ever subtracts: a field never
// raises confidence above the model's self-report, so borderline extractions
// land in front of a human instead of in the books.
package triage

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/hyeonsoft/billscan/internal/core/domain"
)

const (
	// ConfirmThreshold is the minimum confidence for auto-confirmation.
	ConfirmThreshold = 0.85

	// Confidence cap when no document boundary was detected in the photo.
	noDocCap = 0.6

	penaltyVendorMissing   = 0.15
	penaltyAmountMissing   = 0.4
	penaltyDueDateMissing  = 0.3
	penaltyEvidenceMissing = 0.1
	penaltyEmptyOCRText    = 0.2
)

// Input is everything the validator needs from the pipeline run.
type Input struct {
	Candidate   domain.Candidate
	DocDetected bool
	OCRTextLen  int
}

// Result is the normalized record plus the triage decision.
type Result struct {
	Fields     domain.ExtractedFields
	Confidence float64
	Status     domain.JobStatus
}

// Evaluate normalizes the candidate, scores it, and decides between
// CONFIRMED and NEEDS_REVIEW.
func Evaluate(in Input) Result {
	fields := Normalize(in.Candidate)
	confidence := score(fields, in)

	status := domain.StatusNeedsReview
	if confidence >= ConfirmThreshold {
		status = domain.StatusConfirmed
	}

	return Result{
		Fields:     fields,
		Confidence: confidence,
		Status:     status,
	}
}

// Normalize coerces the loosely-typed candidate into the strict field set:
// amounts rounded to integer currency units, dates to ISO form, the bill
// type onto the closed enum, and blank strings collapsed to nil.
func Normalize(c domain.Candidate) domain.ExtractedFields {
	fields := domain.ExtractedFields{
		VendorName:     cleanString(c.VendorName),
		DueDate:        NormalizeDate(c.DueDate),
		PeriodStart:    NormalizeDate(c.PeriodStart),
		PeriodEnd:      NormalizeDate(c.PeriodEnd),
		CustomerNumber: cleanString(c.CustomerNumber),
		PaymentAccount: cleanString(c.PaymentAccount),
	}

	billType := domain.ParseBillType(strings.ToUpper(strings.TrimSpace(c.BillType)))
	fields.BillType = &billType

	if c.AmountDue != nil {
		amount := int64(math.Round(*c.AmountDue))
		fields.AmountDue = &amount
	}

	return fields
}

func score(fields domain.ExtractedFields, in Input) float64 {
	confidence := clamp01(in.Candidate.Confidence)

	if fields.VendorName == nil {
		confidence -= penaltyVendorMissing
	}
	if fields.AmountDue == nil || *fields.AmountDue <= 0 {
		confidence -= penaltyAmountMissing
	}
	if fields.DueDate == nil {
		confidence -= penaltyDueDateMissing
	}
	if strings.TrimSpace(in.Candidate.Evidence.AmountDue) == "" {
		confidence -= penaltyEvidenceMissing
	}
	if strings.TrimSpace(in.Candidate.Evidence.DueDate) == "" {
		confidence -= penaltyEvidenceMissing
	}
	if in.OCRTextLen == 0 {
		confidence -= penaltyEmptyOCRText
	}

	if !in.DocDetected && confidence > noDocCap {
		confidence = noDocCap
	}

	return clamp01(confidence)
}

// reLooseDate matches "YYYY?MM?DD"-shaped text with arbitrary separators,
// e.g. "2024-03-25", "2024.3.25", "2024년 3월 25일".
var reLooseDate = regexp.MustCompile(`(\d{4})\D{0,3}(\d{1,2})\D{0,3}(\d{1,2})`)

// NormalizeDate parses loosely formatted date text into ISO YYYY-MM-DD.
// Returns nil when nothing date-shaped and plausible is found.
func NormalizeDate(s string) *string {
	m := reLooseDate.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	year := atoi(m[1])
	month := atoi(m[2])
	day := atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range days (Feb 31 -> Mar 2); treat that
	// as unparseable rather than inventing a date.
	if d.Day() != day || d.Month() != time.Month(month) {
		return nil
	}
	iso := d.Format("2006-01-02")
	return &iso
}

func cleanString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
