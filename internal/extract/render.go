package extract

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"slide-reconstructor/internal/logger"
	"slide-reconstructor/internal/slide"
)

// Renderer rasterizes PDF pages to PNG through poppler's pdftoppm. Rendered
// pages are cached on disk keyed by page number and DPI, so the analysis
// render and a later background export at the same DPI share one rasterize.
type Renderer struct {
	cacheDir   string
	usePoppler bool
}

// NewRenderer creates a Renderer writing its page cache under cacheDir.
func NewRenderer(cacheDir string) *Renderer {
	return &Renderer{
		cacheDir:   cacheDir,
		usePoppler: checkPopplerAvailable(),
	}
}

// checkPopplerAvailable checks if pdftoppm is available
func checkPopplerAvailable() bool {
	cmd := exec.Command("pdftoppm", "-v")
	err := cmd.Run()
	return err == nil
}

// RenderPage rasterizes one page (0-based) at the given DPI and returns the
// decoded image together with the cached file path.
func (r *Renderer) RenderPage(pdfPath string, pageIndex, dpi int) (image.Image, string, error) {
	if !r.usePoppler {
		return nil, "", slide.NewErrorWithPage(slide.ErrRenderFailed,
			"poppler-utils not found, please install pdftoppm", pageIndex, nil)
	}

	dir := filepath.Join(r.cacheDir, fmt.Sprintf("render_%ddpi", dpi))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", slide.NewErrorWithPage(slide.ErrRenderFailed,
			"cannot create render cache directory", pageIndex, err)
	}

	imgPath := filepath.Join(dir, fmt.Sprintf("page_%04d.png", pageIndex))
	if _, err := os.Stat(imgPath); err == nil {
		img, err := loadImage(imgPath)
		if err == nil {
			logger.Debug("render cache hit",
				logger.Int("page", pageIndex), logger.Int("dpi", dpi))
			return img, imgPath, nil
		}
		// Corrupt cache entry, re-render.
		os.Remove(imgPath)
	}

	outputPrefix := filepath.Join(dir, fmt.Sprintf("page_%04d", pageIndex))
	args := []string{
		"-f", strconv.Itoa(pageIndex + 1),
		"-l", strconv.Itoa(pageIndex + 1),
		"-png",
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		pdfPath,
		outputPrefix,
	}

	cmd := exec.Command("pdftoppm", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, "", slide.NewErrorWithDetails(slide.ErrRenderFailed,
			"pdftoppm failed", string(output), err)
	}

	img, err := loadImage(imgPath)
	if err != nil {
		return nil, "", slide.NewErrorWithPage(slide.ErrRenderFailed,
			"cannot load rendered page image", pageIndex, err)
	}

	logger.Debug("page rendered",
		logger.Int("page", pageIndex),
		logger.Int("dpi", dpi),
		logger.Int("width", img.Bounds().Dx()),
		logger.Int("height", img.Bounds().Dy()))

	return img, imgPath, nil
}

// Cleanup removes the render cache.
func (r *Renderer) Cleanup() {
	if r.cacheDir == "" {
		return
	}
	dirs, err := filepath.Glob(filepath.Join(r.cacheDir, "render_*dpi"))
	if err != nil {
		return
	}
	for _, d := range dirs {
		os.RemoveAll(d)
	}
}

// loadImage loads an image from file
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}

	return img, nil
}
