// Package gemini is the field-extraction client. It speaks the
// OpenAI-compatible chat-completions wire with a json_schema response
// format, validates the returned document against the same schema, and
// decodes it leniently: external values are coerced, never trusted.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hyeonsoft/billscan/internal/core/domain"
	"github.com/hyeonsoft/billscan/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	executor   *resilience.Executor
	schema     map[string]any
}

func New(cfg Config, executor *resilience.Executor) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		executor:   executor,
		schema:     BuildBillJSONSchema(),
	}
}

// Extract sends the OCR transcript (and template field hints, when template
// recognition matched) and returns the parsed candidate. Any transport or
// schema failure is an error: extraction correctness cannot be guessed.
func (c *Client) Extract(ctx context.Context, ocrText string, fieldHints []string) (domain.Candidate, error) {
	payload := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildUserPrompt(ocrText, fieldHints)},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "bill_extraction",
				"strict": true,
				"schema": c.schema,
			},
		},
	}

	var content []byte
	call := func(ctx context.Context) error {
		raw, err := c.complete(ctx, payload)
		if err != nil {
			return err
		}
		content = raw
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "llm.extract", call, classifyLLMError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.Candidate{}, err
	}

	if err := validateAgainstSchema(c.schema, content); err != nil {
		return domain.Candidate{}, err
	}
	return decodeCandidate(content), nil
}

func (c *Client) complete(ctx context.Context, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{
			Operation:  "llm.extract",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw[:min(len(raw), 2048)])),
		}
	}

	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode completion envelope: %w", err)
	}
	if len(envelope.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}
	return []byte(extractJSONObject(envelope.Choices[0].Message.Content)), nil
}

// extractJSONObject trims anything a chatty model wraps around the JSON body.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

// decodeCandidate coerces the schema-validated document into the candidate
// type. Fields keep failing closed here: a malformed value becomes absent,
// and triage penalizes absence.
func decodeCandidate(data []byte) domain.Candidate {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Candidate{Raw: data}
	}

	cand := domain.Candidate{
		BillType:       asString(m["bill_type"]),
		VendorName:     asString(m["vendor_name"]),
		DueDate:        asString(m["due_date"]),
		PeriodStart:    asString(m["billing_period_start"]),
		PeriodEnd:      asString(m["billing_period_end"]),
		CustomerNumber: asString(m["customer_number"]),
		PaymentAccount: asString(m["payment_account"]),
		AmountDue:      asAmount(m["amount_due"]),
		Confidence:     asFloat(m["confidence"]),
		Raw:            json.RawMessage(data),
	}

	if ev, ok := m["evidence"].(map[string]any); ok {
		cand.Evidence = domain.Evidence{
			VendorName:    asString(ev["vendor_name"]),
			AmountDue:     asString(ev["amount_due"]),
			DueDate:       asString(ev["due_date"]),
			BillingPeriod: asString(ev["billing_period"]),
		}
	}
	return cand
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

// asAmount accepts a JSON number or a numeric string like "45,000원".
func asAmount(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' || r == '.' || r == '-' {
				return r
			}
			return -1
		}, t)
		if cleaned == "" {
			return nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
