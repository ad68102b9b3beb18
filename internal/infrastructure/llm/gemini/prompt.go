package gemini

import "strings"

const systemPrompt = `You extract structured fields from Korean utility-bill OCR text.
Return ONLY JSON matching the provided JSON Schema.
Rules:
- amount_due is the amount currently payable for this billing month. Prefer text near "납부할 금액", "당월 요금", "금월 청구금액". Never use overdue or penalty amounts ("연체", "미납", "가산금").
- due_date is the payment deadline. Prefer text near "납부기한", "납기일", "납부 마감일" over issue or meter-reading dates. Use YYYY-MM-DD.
- bill_type must be one of the enum values; use ETC when unsure.
- For every non-null major field, quote the exact source snippet in the evidence object.
- confidence reflects how certain you are of amount_due and due_date together, in [0,1].
- Use null for anything you cannot find. Do not guess.`

// buildUserPrompt assembles the OCR transcript plus any template field hints
// into the user message.
func buildUserPrompt(ocrText string, fieldHints []string) string {
	var b strings.Builder
	b.WriteString("OCR text of the bill:\n---\n")
	b.WriteString(ocrText)
	b.WriteString("\n---\n")
	if len(fieldHints) > 0 {
		b.WriteString("Template-matched field values, in layout order:\n")
		for _, hint := range fieldHints {
			b.WriteString("- ")
			b.WriteString(hint)
			b.WriteString("\n")
		}
	}
	b.WriteString("Extract the bill fields.")
	return b.String()
}
