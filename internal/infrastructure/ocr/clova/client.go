// Package clova calls the external text-recognition service in its two
// modes: template-matched recognition against pre-registered bill layouts,
// and general free-form recognition. Response shapes vary between the two
// endpoints, so everything coming back is treated as optional and normalized
// into domain.OCRResult.
package clova

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyeonsoft/billscan/internal/core/domain"
	"github.com/hyeonsoft/billscan/internal/infrastructure/resilience"
)

type Config struct {
	GeneralURL  string
	TemplateURL string
	Secret      string
	Lang        string
	TemplateIDs []string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.Lang == "" {
		cfg.Lang = "ko"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

// TemplateConfigured reports whether template recognition can be attempted.
func (c *Client) TemplateConfigured() bool {
	return c.cfg.TemplateURL != "" && len(c.cfg.TemplateIDs) > 0
}

func (c *Client) RecognizeTemplate(ctx context.Context, imageData []byte) (domain.OCRResult, error) {
	if !c.TemplateConfigured() {
		return domain.OCRResult{}, fmt.Errorf("template ocr endpoint not configured")
	}
	return c.recognize(ctx, c.cfg.TemplateURL, imageData, domain.OCRModeTemplate, c.cfg.TemplateIDs)
}

func (c *Client) RecognizeGeneral(ctx context.Context, imageData []byte) (domain.OCRResult, error) {
	if c.cfg.GeneralURL == "" {
		return domain.OCRResult{}, fmt.Errorf("general ocr endpoint not configured")
	}
	return c.recognize(ctx, c.cfg.GeneralURL, imageData, domain.OCRModeGeneral, nil)
}

func (c *Client) recognize(ctx context.Context, url string, imageData []byte, mode domain.OCRMode, templateIDs []string) (domain.OCRResult, error) {
	payload := map[string]any{
		"version":              "V2",
		"requestId":            uuid.NewString(),
		"timestamp":            time.Now().UnixMilli(),
		"lang":                 c.cfg.Lang,
		"enableTableDetection": true,
		"images": []map[string]any{{
			"format": "png",
			"name":   "bill",
			"data":   base64.StdEncoding.EncodeToString(imageData),
		}},
	}
	if len(templateIDs) > 0 {
		payload["templateIds"] = templateIDs
	}

	operation := "ocr." + strings.ToLower(string(mode))
	var raw json.RawMessage
	call := func(ctx context.Context) error {
		body, err := c.postJSON(ctx, url, payload, operation)
		if err != nil {
			return err
		}
		raw = body
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyOCRError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.OCRResult{}, err
	}

	result := normalizeResponse(raw)
	result.Mode = mode
	return result, nil
}

// Wire shapes of the recognition response. Every field is optional: the two
// endpoints disagree on which of them appear, and absent just means empty.
type responseEnvelope struct {
	Images []responseImage `json:"images"`
}

type responseImage struct {
	Fields          []responseField `json:"fields"`
	Tables          []responseTable `json:"tables"`
	MatchedTemplate *struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
	} `json:"matchedTemplate"`
}

type responseField struct {
	InferText string `json:"inferText"`
}

type responseTable struct {
	Cells []struct {
		CellText string `json:"cellText"`
	} `json:"cells"`
}

// normalizeResponse flattens field text and table-cell text into one
// newline-joined transcript. Parse failures yield an empty result rather
// than an error; the caller's length/field-count checks handle that.
func normalizeResponse(raw json.RawMessage) domain.OCRResult {
	result := domain.OCRResult{Raw: raw}

	var envelope responseEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Images) == 0 {
		return result
	}
	img := envelope.Images[0]

	var lines []string
	for _, f := range img.Fields {
		if text := strings.TrimSpace(f.InferText); text != "" {
			lines = append(lines, text)
		}
	}
	for _, table := range img.Tables {
		for _, cell := range table.Cells {
			if text := strings.TrimSpace(cell.CellText); text != "" {
				lines = append(lines, text)
			}
		}
	}

	result.Text = strings.Join(lines, "\n")
	result.MatchedFields = len(img.Fields)
	if img.MatchedTemplate != nil {
		result.TemplateID = img.MatchedTemplate.ID.String()
	}
	return result
}
