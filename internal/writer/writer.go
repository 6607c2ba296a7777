// Package writer persists the resolved layout records for the downstream
// document generator. The handoff is a JSON layout file plus the background
// and graphic images as PNG assets; each record is consumed exactly once.
package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"slide-reconstructor/internal/logger"
	"slide-reconstructor/internal/slide"
)

// Writer consumes the ordered layout records of a run.
type Writer interface {
	Write(records []*slide.LayoutRecord) error
}

// JSONWriter writes layout.json and an assets directory under the output
// directory.
type JSONWriter struct {
	outDir  string
	written bool
}

// NewJSONWriter creates a JSONWriter targeting outDir.
func NewJSONWriter(outDir string) *JSONWriter {
	return &JSONWriter{outDir: outDir}
}

// layoutDocument is the persisted form of a run's layout records.
type layoutDocument struct {
	Slides []*slide.LayoutRecord `json:"slides"`
}

// Write persists the records in page order. Image payloads are written as
// PNG files and the records reference them by path. Calling Write twice is
// an error; the handoff is single-consumption.
func (w *JSONWriter) Write(records []*slide.LayoutRecord) error {
	if w.written {
		return slide.NewError(slide.ErrWriteFailed, "layout records were already written", nil)
	}

	assetsDir := filepath.Join(w.outDir, "assets")
	if err := os.MkdirAll(assetsDir, 0755); err != nil {
		return slide.NewError(slide.ErrWriteFailed, "cannot create output directory", err)
	}

	// Failed pages hand over no record; they are absent from the layout.
	ordered := make([]*slide.LayoutRecord, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			ordered = append(ordered, rec)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PageIndex < ordered[j].PageIndex
	})

	for _, rec := range ordered {
		if rec.Background != nil && len(rec.Background.ImageData) > 0 {
			name := fmt.Sprintf("page_%04d_background.png", rec.PageIndex)
			path, err := w.writeAsset(assetsDir, name, rec.Background.ImageData)
			if err != nil {
				return err
			}
			rec.Background.ImagePath = path
			rec.Background.ImageData = nil
		}
		for i := range rec.Graphics {
			g := &rec.Graphics[i]
			if len(g.ImageData) == 0 {
				continue
			}
			name := fmt.Sprintf("page_%04d_graphic_%02d.png", rec.PageIndex, i)
			path, err := w.writeAsset(assetsDir, name, g.ImageData)
			if err != nil {
				return err
			}
			g.ImagePath = path
			g.ImageData = nil
		}
	}

	doc := layoutDocument{Slides: ordered}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return slide.NewError(slide.ErrWriteFailed, "cannot marshal layout document", err)
	}

	layoutPath := filepath.Join(w.outDir, "layout.json")
	if err := os.WriteFile(layoutPath, data, 0644); err != nil {
		return slide.NewError(slide.ErrWriteFailed, "cannot write layout document", err)
	}

	w.written = true
	logger.Info("layout written",
		logger.String("path", layoutPath),
		logger.Int("slides", len(ordered)))
	return nil
}

// writeAsset writes one image asset and returns its path relative to the
// output directory.
func (w *JSONWriter) writeAsset(assetsDir, name string, data []byte) (string, error) {
	path := filepath.Join(assetsDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", slide.NewErrorWithDetails(slide.ErrWriteFailed,
			"cannot write image asset", name, err)
	}
	return filepath.Join("assets", name), nil
}
