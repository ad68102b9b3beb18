package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hyeonsoft/billscan/internal/core/domain"
	"github.com/hyeonsoft/billscan/internal/core/ports"
	"github.com/hyeonsoft/billscan/internal/core/triage"
)

const (
	contentTypePNG = "image/png"

	// DefaultOCRMinTextLen is the minimum transcript length for a template
	// match to count as usable.
	DefaultOCRMinTextLen = 20

	templateMinMatchedFields = 4
)

// StageObserver receives the duration and outcome of each completed stage.
type StageObserver func(stage domain.Stage, duration time.Duration, err error)

type ProcessBillUseCase struct {
	repo         ports.JobRepository
	storage      ports.BlobStore
	preprocessor ports.ImagePreprocessor
	recognizer   ports.TextRecognizer
	extractor    ports.FieldExtractor

	minTextLen   int
	observeStage StageObserver
}

func NewProcessBillUseCase(
	repo ports.JobRepository,
	storage ports.BlobStore,
	preprocessor ports.ImagePreprocessor,
	recognizer ports.TextRecognizer,
	extractor ports.FieldExtractor,
) *ProcessBillUseCase {
	return &ProcessBillUseCase{
		repo:         repo,
		storage:      storage,
		preprocessor: preprocessor,
		recognizer:   recognizer,
		extractor:    extractor,
		minTextLen:   DefaultOCRMinTextLen,
	}
}

// WithOCRMinTextLen overrides the template-acceptance transcript length.
func (uc *ProcessBillUseCase) WithOCRMinTextLen(n int) *ProcessBillUseCase {
	if n > 0 {
		uc.minTextLen = n
	}
	return uc
}

// WithStageObserver installs a per-stage metrics hook.
func (uc *ProcessBillUseCase) WithStageObserver(fn StageObserver) *ProcessBillUseCase {
	uc.observeStage = fn
	return uc
}

// ProcessByID runs the full pipeline for one job. Triggers on terminal or
// already-claimed jobs are silent no-ops, so duplicate queue deliveries and
// double-clicked triggers are harmless. Any pipeline error finalizes the job
// into NEEDS_REVIEW instead of leaving it stuck in PROCESSING.
func (uc *ProcessBillUseCase) ProcessByID(ctx context.Context, jobID string) error {
	job, err := uc.repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetch bill job: %w", err)
	}
	if job.Status.Terminal() {
		return nil
	}

	claimed, err := uc.repo.Claim(ctx, jobID)
	if err != nil {
		return fmt.Errorf("claim bill job: %w", err)
	}
	if !claimed {
		return nil
	}

	if err := uc.runPipeline(ctx, job); err != nil {
		if failErr := uc.markFailed(ctx, jobID, err); failErr != nil {
			return fmt.Errorf("%w; finalize failed job: %v", err, failErr)
		}
		return err
	}
	return nil
}

func (uc *ProcessBillUseCase) runPipeline(ctx context.Context, job *domain.BillJob) error {
	original, err := uc.download(ctx, job)
	if err != nil {
		return err
	}

	pre, err := uc.preprocess(ctx, job, original)
	if err != nil {
		return err
	}

	if err := uc.uploadProcessed(ctx, job, pre); err != nil {
		return err
	}

	ocr, err := uc.recognize(ctx, job, pre)
	if err != nil {
		return err
	}

	candidate, err := uc.extract(ctx, job, ocr)
	if err != nil {
		return err
	}

	return uc.validate(ctx, job, pre, ocr, candidate)
}

func (uc *ProcessBillUseCase) advance(ctx context.Context, jobID string, stage domain.Stage) error {
	err := uc.repo.Update(ctx, jobID, domain.JobPatch{Stage: domain.Ptr(stage)})
	if err != nil {
		return fmt.Errorf("advance to stage %s: %w", stage, err)
	}
	return nil
}

func (uc *ProcessBillUseCase) timed(stage domain.Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	if uc.observeStage != nil {
		uc.observeStage(stage, time.Since(start), err)
	}
	return err
}

func (uc *ProcessBillUseCase) download(ctx context.Context, job *domain.BillJob) ([]byte, error) {
	if err := uc.advance(ctx, job.ID, domain.StageDownload); err != nil {
		return nil, err
	}

	var data []byte
	err := uc.timed(domain.StageDownload, func() error {
		rc, err := uc.storage.Download(ctx, job.OriginalPath)
		if err != nil {
			return fmt.Errorf("download original: %w", err)
		}
		defer rc.Close()

		data, err = io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("read original: %w", err)
		}
		return nil
	})
	return data, err
}

func (uc *ProcessBillUseCase) preprocess(ctx context.Context, job *domain.BillJob, original []byte) (domain.PreprocessResult, error) {
	if err := uc.advance(ctx, job.ID, domain.StagePreprocessCV); err != nil {
		return domain.PreprocessResult{}, err
	}

	var pre domain.PreprocessResult
	err := uc.timed(domain.StagePreprocessCV, func() error {
		var err error
		pre, err = uc.preprocessor.Process(ctx, original)
		if err != nil {
			return fmt.Errorf("preprocess image: %w", err)
		}
		return nil
	})
	return pre, err
}

func (uc *ProcessBillUseCase) uploadProcessed(ctx context.Context, job *domain.BillJob, pre domain.PreprocessResult) error {
	if err := uc.advance(ctx, job.ID, domain.StagePreprocessUpload); err != nil {
		return err
	}

	return uc.timed(domain.StagePreprocessUpload, func() error {
		variants := []struct {
			name string
			data []byte
		}{
			{"scan.png", pre.Scan},
			{"trackA.png", pre.TrackA},
			{"trackB.png", pre.TrackB},
		}
		keys := make([]string, len(variants))
		for i, v := range variants {
			keys[i] = job.ProcessedKey(v.name)
			if err := uc.storage.Upload(ctx, keys[i], bytes.NewReader(v.data), contentTypePNG); err != nil {
				return fmt.Errorf("upload %s: %w", v.name, err)
			}
		}

		patch := domain.JobPatch{
			ScanPath:    domain.Ptr(keys[0]),
			TrackAPath:  domain.Ptr(keys[1]),
			TrackBPath:  domain.Ptr(keys[2]),
			DocDetected: domain.Ptr(pre.DocDetected),
		}
		if pre.Note != "" {
			patch.PreprocessNote = domain.Ptr(pre.Note)
		}
		if err := uc.repo.Update(ctx, job.ID, patch); err != nil {
			return fmt.Errorf("record processed paths: %w", err)
		}
		return nil
	})
}

// recognize tries the template endpoint first when configured, accepting the
// result only if the transcript is long enough or enough template fields
// matched. Template failures are recorded on the job but never fatal; a
// usable transcript from the general endpoint is still expected.
func (uc *ProcessBillUseCase) recognize(ctx context.Context, job *domain.BillJob, pre domain.PreprocessResult) (domain.OCRResult, error) {
	if uc.recognizer.TemplateConfigured() {
		if err := uc.advance(ctx, job.ID, domain.StageTemplateOCR); err != nil {
			return domain.OCRResult{}, err
		}

		var res domain.OCRResult
		tmplErr := uc.timed(domain.StageTemplateOCR, func() error {
			var err error
			res, err = uc.recognizer.RecognizeTemplate(ctx, pre.TrackA)
			return err
		})
		if tmplErr != nil {
			patch := domain.JobPatch{
				LastErrorCode:    domain.Ptr(domain.ErrCodeTemplateOCRFailed),
				LastErrorMessage: domain.Ptr(tmplErr.Error()),
			}
			if err := uc.repo.Update(ctx, job.ID, patch); err != nil {
				return domain.OCRResult{}, fmt.Errorf("record template ocr failure: %w", err)
			}
		} else if uc.templateUsable(res) {
			return uc.recordOCR(ctx, job.ID, res)
		}
	}

	if err := uc.advance(ctx, job.ID, domain.StageGeneralOCR); err != nil {
		return domain.OCRResult{}, err
	}

	var res domain.OCRResult
	err := uc.timed(domain.StageGeneralOCR, func() error {
		var err error
		res, err = uc.recognizer.RecognizeGeneral(ctx, pre.TrackB)
		if err != nil {
			return fmt.Errorf("general ocr: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.OCRResult{}, err
	}
	return uc.recordOCR(ctx, job.ID, res)
}

func (uc *ProcessBillUseCase) templateUsable(res domain.OCRResult) bool {
	return len(res.Text) >= uc.minTextLen || res.MatchedFields >= templateMinMatchedFields
}

func (uc *ProcessBillUseCase) recordOCR(ctx context.Context, jobID string, res domain.OCRResult) (domain.OCRResult, error) {
	patch := domain.JobPatch{
		RawOCRText: domain.Ptr(res.Text),
		OCRMode:    domain.Ptr(res.Mode),
	}
	if res.TemplateID != "" {
		patch.TemplateID = domain.Ptr(res.TemplateID)
	}
	if err := uc.repo.Update(ctx, jobID, patch); err != nil {
		return domain.OCRResult{}, fmt.Errorf("record ocr result: %w", err)
	}
	return res, nil
}

func (uc *ProcessBillUseCase) extract(ctx context.Context, job *domain.BillJob, ocr domain.OCRResult) (domain.Candidate, error) {
	if err := uc.advance(ctx, job.ID, domain.StageGemini); err != nil {
		return domain.Candidate{}, err
	}

	var hints []string
	if ocr.Mode == domain.OCRModeTemplate && ocr.TemplateID != "" {
		hints = append(hints, fmt.Sprintf("recognized with billing template %s (%d matched fields)", ocr.TemplateID, ocr.MatchedFields))
	}

	var candidate domain.Candidate
	err := uc.timed(domain.StageGemini, func() error {
		var err error
		candidate, err = uc.extractor.Extract(ctx, ocr.Text, hints)
		if err != nil {
			return fmt.Errorf("extract fields: %w", err)
		}
		return nil
	})
	return candidate, err
}

func (uc *ProcessBillUseCase) validate(
	ctx context.Context,
	job *domain.BillJob,
	pre domain.PreprocessResult,
	ocr domain.OCRResult,
	candidate domain.Candidate,
) error {
	if err := uc.advance(ctx, job.ID, domain.StageValidate); err != nil {
		return err
	}

	return uc.timed(domain.StageValidate, func() error {
		result := triage.Evaluate(triage.Input{
			Candidate:   candidate,
			DocDetected: pre.DocDetected,
			OCRTextLen:  len(ocr.Text),
		})

		patch := domain.JobPatch{
			Status:     domain.Ptr(result.Status),
			Stage:      domain.Ptr(domain.StageDone),
			Fields:     &result.Fields,
			Confidence: domain.Ptr(result.Confidence),
			ClearError: result.Status == domain.StatusConfirmed,
			ClearClaim: true,
		}
		if len(candidate.Raw) > 0 {
			patch.Extraction = candidate.Raw
		}
		if err := uc.repo.Update(ctx, job.ID, patch); err != nil {
			return fmt.Errorf("finalize job: %w", err)
		}
		return nil
	})
}

// markFailed is the catch-all terminal transition. The job lands in human
// review with the error recorded, whatever stage broke.
func (uc *ProcessBillUseCase) markFailed(ctx context.Context, jobID string, procErr error) error {
	patch := domain.JobPatch{
		Status:           domain.Ptr(domain.StatusNeedsReview),
		Stage:            domain.Ptr(domain.StageDone),
		LastErrorCode:    domain.Ptr(domain.ErrCodePipelineFailed),
		LastErrorMessage: domain.Ptr(procErr.Error()),
		ClearClaim:       true,
	}
	return uc.repo.Update(ctx, jobID, patch)
}
