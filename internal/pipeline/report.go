package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"slide-reconstructor/internal/logger"
	"slide-reconstructor/internal/slide"
)

// RunReport summarizes one pipeline run for later inspection.
type RunReport struct {
	InputFile  string    `json:"input_file"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	PageCount  int       `json:"page_count"`

	OKPages       int `json:"ok_pages"`
	DegradedPages int `json:"degraded_pages"`
	FailedPages   int `json:"failed_pages"`
	SkippedPages  int `json:"skipped_pages"`
	VisionPages   int `json:"vision_pages"`

	Pages []slide.PageResult `json:"pages"`
}

// NewRunReport builds a report from the per-page results.
func NewRunReport(inputFile string, startedAt time.Time, results []slide.PageResult) *RunReport {
	report := &RunReport{
		InputFile:  inputFile,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		PageCount:  len(results),
		Pages:      results,
	}
	for _, r := range results {
		switch r.Status {
		case slide.StatusOK:
			report.OKPages++
		case slide.StatusDegraded:
			report.DegradedPages++
		case slide.StatusFailed:
			report.FailedPages++
		case slide.StatusSkipped:
			report.SkippedPages++
		}
		if r.UsedVision {
			report.VisionPages++
		}
	}
	return report
}

// Save persists the report as indented JSON.
func (r *RunReport) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return slide.NewError(slide.ErrWriteFailed, "cannot create report directory", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return slide.NewError(slide.ErrWriteFailed, "cannot marshal run report", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return slide.NewError(slide.ErrWriteFailed, "cannot write run report", err)
	}

	logger.Info("run report saved", logger.String("path", path))
	return nil
}
