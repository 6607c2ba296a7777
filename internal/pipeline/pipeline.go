// Package pipeline orchestrates the per-page layer separation: extraction,
// normalization, deduplication, grouping, the optional vision guess,
// arbitration, and resolution. Pages are independent and processed
// concurrently under a fixed limit; one failed page never stops the run.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync"

	"slide-reconstructor/internal/arbiter"
	"slide-reconstructor/internal/config"
	"slide-reconstructor/internal/dedup"
	"slide-reconstructor/internal/extract"
	"slide-reconstructor/internal/group"
	"slide-reconstructor/internal/logger"
	"slide-reconstructor/internal/resolver"
	"slide-reconstructor/internal/slide"
)

// LayoutAnalyzer supplies the optional per-page vision guess. A nil analyzer
// means vision is disabled; that path is first-class, not an error.
type LayoutAnalyzer interface {
	AnalyzePage(ctx context.Context, pageIndex int, img image.Image) (*slide.VisionGuess, error)
}

// PageRenderer rasterizes a page for vision analysis and image export.
type PageRenderer interface {
	RenderPage(pdfPath string, pageIndex, dpi int) (image.Image, string, error)
}

// DocumentSource supplies page geometry and raw elements for a document.
// Satisfied by the extract backend.
type DocumentSource interface {
	PageCount() int
	PageGeometry(pageIndex int) (slide.PageGeometry, error)
	ExtractPage(pageIndex int) ([]slide.RawElement, error)
}

// Pipeline runs the layer separation over a document.
type Pipeline struct {
	cfg      *config.Config
	pdfPath  string
	backend  DocumentSource
	renderer PageRenderer
	analyzer LayoutAnalyzer

	normalizer *extract.Normalizer
	dedup      *dedup.Deduplicator
	grouper    *group.Grouper
	arbiter    *arbiter.Arbiter
	resolver   *resolver.Resolver
}

// New creates a Pipeline over an opened document. analyzer may be nil to run
// geometry-only; renderer may be nil when no raster output is needed.
func New(cfg *config.Config, pdfPath string, backend DocumentSource, renderer PageRenderer, analyzer LayoutAnalyzer) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		pdfPath:    pdfPath,
		backend:    backend,
		renderer:   renderer,
		analyzer:   analyzer,
		normalizer: extract.NewNormalizer(cfg),
		dedup:      dedup.NewDeduplicator(cfg),
		grouper:    group.NewGrouper(cfg),
		arbiter:    arbiter.NewArbiter(cfg),
		resolver:   resolver.NewResolver(cfg),
	}
}

// Run processes every page and returns one result per page, in page order.
// Cancelling the context stops new pages from starting; pages already in
// flight finish, pages never started are marked skipped.
func (p *Pipeline) Run(ctx context.Context) []slide.PageResult {
	pageCount := p.backend.PageCount()
	results := make([]slide.PageResult, pageCount)

	sem := make(chan struct{}, p.cfg.MaxConcurrentPages)
	var wg sync.WaitGroup

	logger.Info("pipeline run started",
		logger.Int("pages", pageCount),
		logger.Int("maxConcurrent", p.cfg.MaxConcurrentPages),
		logger.Bool("vision", p.analyzer != nil))

	for i := 0; i < pageCount; i++ {
		if ctx.Err() != nil {
			results[i] = slide.PageResult{
				PageIndex: i,
				Status:    slide.StatusSkipped,
				Error:     "run cancelled before page started",
			}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(pageIndex int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[pageIndex] = p.processPage(ctx, pageIndex)
		}(i)
	}

	wg.Wait()

	var ok, degraded, failed, skipped int
	for _, r := range results {
		switch r.Status {
		case slide.StatusOK:
			ok++
		case slide.StatusDegraded:
			degraded++
		case slide.StatusFailed:
			failed++
		case slide.StatusSkipped:
			skipped++
		}
	}
	logger.Info("pipeline run finished",
		logger.Int("ok", ok),
		logger.Int("degraded", degraded),
		logger.Int("failed", failed),
		logger.Int("skipped", skipped))

	return results
}

// processPage runs the full per-page pipeline. Each stage consumes the
// previous stage's output only; pages share nothing.
func (p *Pipeline) processPage(ctx context.Context, pageIndex int) slide.PageResult {
	if ctx.Err() != nil {
		return slide.PageResult{
			PageIndex: pageIndex,
			Status:    slide.StatusSkipped,
			Error:     "run cancelled before page started",
		}
	}

	result := slide.PageResult{PageIndex: pageIndex}

	geom, err := p.backend.PageGeometry(pageIndex)
	if err != nil {
		return failPage(pageIndex, err)
	}

	raws, err := p.backend.ExtractPage(pageIndex)
	if err != nil {
		return failPage(pageIndex, err)
	}

	elements, warnings, err := p.normalizer.Normalize(geom, raws)
	if err != nil {
		return failPage(pageIndex, err)
	}
	result.Warnings = append(result.Warnings, warnings...)

	elements = p.dedup.Dedup(elements)
	blocks, images := p.grouper.Group(pageIndex, elements)

	var render image.Image
	if p.renderer != nil {
		render, _, err = p.renderer.RenderPage(p.pdfPath, pageIndex, p.cfg.AnalysisDPI)
		if err != nil {
			logger.Warn("page render failed, continuing without imagery",
				logger.Int("page", pageIndex), logger.Err(err))
			result.Warnings = append(result.Warnings, slide.Warning{
				Code:    slide.WarnRenderFailed,
				Message: fmt.Sprintf("page render failed: %v", err),
			})
			render = nil
		}
	}

	var guess *slide.VisionGuess
	if p.analyzer != nil && render != nil {
		guess, err = p.analyzer.AnalyzePage(ctx, pageIndex, render)
		if err != nil {
			// Vision failure is recoverable; the arbiter records the
			// degradation when it sees a nil guess.
			logger.Warn("vision analysis unavailable",
				logger.Int("page", pageIndex), logger.Err(err))
			guess = nil
		}
	}

	arbitrated := p.arbiter.Arbitrate(geom, blocks, images, guess)
	for _, w := range arbitrated.Warnings {
		// Vision switched off is a configuration, not a degradation.
		if w.Code == slide.WarnVisionAbsent && p.analyzer == nil {
			continue
		}
		result.Warnings = append(result.Warnings, w)
	}
	result.UsedVision = arbitrated.UsedVision

	record, resolveWarnings, err := p.resolver.Resolve(geom, arbitrated, render)
	if err != nil {
		return failPage(pageIndex, err)
	}
	result.Warnings = append(result.Warnings, resolveWarnings...)
	result.Record = record

	if len(result.Warnings) > 0 {
		result.Status = slide.StatusDegraded
	} else {
		result.Status = slide.StatusOK
	}
	return result
}

func failPage(pageIndex int, err error) slide.PageResult {
	logger.Error("page failed", err, logger.Int("page", pageIndex))
	return slide.PageResult{
		PageIndex: pageIndex,
		Status:    slide.StatusFailed,
		Error:     err.Error(),
	}
}
