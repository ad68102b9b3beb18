package triage

import (
	"math"
	"testing"

	"github.com/hyeonsoft/billscan/internal/core/domain"
)

func fullCandidate() domain.Candidate {
	amount := 45000.0
	return domain.Candidate{
		BillType:   "ELECTRICITY",
		VendorName: "한국전력공사",
		AmountDue:  &amount,
		DueDate:    "2024-03-25",
		Evidence: domain.Evidence{
			VendorName: "한국전력공사",
			AmountDue:  "납부할 금액 45,000원",
			DueDate:    "납부기한 2024-03-25",
		},
		Confidence: 0.95,
	}
}

func TestEvaluateCleanBillConfirms(t *testing.T) {
	res := Evaluate(Input{Candidate: fullCandidate(), DocDetected: true, OCRTextLen: 120})

	if res.Status != domain.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s (confidence %v)", res.Status, res.Confidence)
	}
	if res.Confidence < ConfirmThreshold {
		t.Fatalf("expected confidence >= %v, got %v", ConfirmThreshold, res.Confidence)
	}
	if res.Fields.AmountDue == nil || *res.Fields.AmountDue != 45000 {
		t.Fatalf("expected amount 45000, got %v", res.Fields.AmountDue)
	}
	if res.Fields.DueDate == nil || *res.Fields.DueDate != "2024-03-25" {
		t.Fatalf("expected due date 2024-03-25, got %v", res.Fields.DueDate)
	}
}

func TestEvaluateNoDocumentBoundaryCapsConfidence(t *testing.T) {
	res := Evaluate(Input{Candidate: fullCandidate(), DocDetected: false, OCRTextLen: 120})

	if res.Confidence > 0.6 {
		t.Fatalf("expected confidence capped at 0.6, got %v", res.Confidence)
	}
	if res.Status != domain.StatusNeedsReview {
		t.Fatalf("expected NEEDS_REVIEW, got %s", res.Status)
	}
	if res.Fields.AmountDue == nil || *res.Fields.AmountDue != 45000 {
		t.Fatalf("field values must not change under the cap, got %v", res.Fields.AmountDue)
	}
}

func TestEvaluateMissingAmountPenaltyIsExact(t *testing.T) {
	withAmount := Evaluate(Input{Candidate: fullCandidate(), DocDetected: true, OCRTextLen: 120})

	missing := fullCandidate()
	missing.AmountDue = nil
	missing.Evidence.AmountDue = "납부할 금액 45,000원" // evidence still present
	withoutAmount := Evaluate(Input{Candidate: missing, DocDetected: true, OCRTextLen: 120})

	diff := withAmount.Confidence - withoutAmount.Confidence
	if math.Abs(diff-0.4) > 1e-9 {
		t.Fatalf("expected amount penalty of exactly 0.4, got diff %v", diff)
	}
	if withoutAmount.Confidence >= withAmount.Confidence {
		t.Fatalf("missing field must strictly lower confidence")
	}
}

func TestEvaluateNonPositiveAmountPenalized(t *testing.T) {
	cand := fullCandidate()
	zero := 0.0
	cand.AmountDue = &zero
	res := Evaluate(Input{Candidate: cand, DocDetected: true, OCRTextLen: 120})

	if res.Status != domain.StatusNeedsReview {
		t.Fatalf("zero amount must not auto-confirm, got %s", res.Status)
	}
}

func TestEvaluateEmptyOCRTextDrivesConfidenceToZero(t *testing.T) {
	res := Evaluate(Input{Candidate: domain.Candidate{Confidence: 0.5}, DocDetected: true, OCRTextLen: 0})

	if res.Confidence != 0 {
		t.Fatalf("expected confidence clamped to 0, got %v", res.Confidence)
	}
	if res.Status != domain.StatusNeedsReview {
		t.Fatalf("expected NEEDS_REVIEW, got %s", res.Status)
	}
	if res.Fields.VendorName != nil || res.Fields.AmountDue != nil || res.Fields.DueDate != nil {
		t.Fatalf("expected all fields nil, got %+v", res.Fields)
	}
}

func TestEvaluateMissingEvidencePenalized(t *testing.T) {
	withEvidence := Evaluate(Input{Candidate: fullCandidate(), DocDetected: true, OCRTextLen: 120})

	noEvidence := fullCandidate()
	noEvidence.Evidence.AmountDue = ""
	noEvidence.Evidence.DueDate = ""
	res := Evaluate(Input{Candidate: noEvidence, DocDetected: true, OCRTextLen: 120})

	diff := withEvidence.Confidence - res.Confidence
	if math.Abs(diff-0.2) > 1e-9 {
		t.Fatalf("expected 0.1 per missing evidence snippet, got diff %v", diff)
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-03-25", "2024-03-25", true},
		{"2024.3.25", "2024-03-25", true},
		{"2024년 3월 25일", "2024-03-25", true},
		{"납부기한 2024-03-25", "2024-03-25", true},
		{"2024-02-31", "", false},
		{"no date here", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got := NormalizeDate(tc.in)
		if tc.ok {
			if got == nil || *got != tc.want {
				t.Fatalf("NormalizeDate(%q) = %v, want %q", tc.in, got, tc.want)
			}
			continue
		}
		if got != nil {
			t.Fatalf("NormalizeDate(%q) = %q, want nil", tc.in, *got)
		}
	}
}

func TestNormalizeDefaultsBillTypeToEtc(t *testing.T) {
	cand := fullCandidate()
	cand.BillType = "INTERNET"
	fields := Normalize(cand)
	if fields.BillType == nil || *fields.BillType != domain.BillEtc {
		t.Fatalf("expected ETC for unknown bill type, got %v", fields.BillType)
	}
}

func TestNormalizeRoundsAmountAndCollapsesBlanks(t *testing.T) {
	cand := fullCandidate()
	amount := 45000.4
	cand.AmountDue = &amount
	cand.VendorName = "   "
	fields := Normalize(cand)

	if fields.AmountDue == nil || *fields.AmountDue != 45000 {
		t.Fatalf("expected rounded amount 45000, got %v", fields.AmountDue)
	}
	if fields.VendorName != nil {
		t.Fatalf("blank vendor must collapse to nil, got %q", *fields.VendorName)
	}
}
