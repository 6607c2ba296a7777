// Package config provides configuration management for the slide
// reconstruction pipeline. Every threshold that the pipeline depends on is a
// named, versioned tunable with the empirically known-good value as its
// default; none of them is universally correct across decks, so all of them
// are exposed here rather than hardcoded.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"slide-reconstructor/internal/logger"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "slide-reconstructor-config.json"
	// EnvVisionAPIKey is the environment variable for the vision API key
	EnvVisionAPIKey = "VISION_API_KEY"
	// EnvVisionBaseURL is the environment variable for the vision API base URL
	EnvVisionBaseURL = "VISION_BASE_URL"
	// ConfigVersion marks the tunable-set revision stored in config files
	ConfigVersion = "2"
)

// Defaults. The threshold values are the known-good settings from the
// project's tuning history.
const (
	DefaultVisionModel = "gemini-2.0-flash-exp"

	DefaultAnalysisDPI = 300
	DefaultExportDPI   = 150

	DefaultDedupOverlapThreshold  = 0.80
	DefaultLineHeightMultiple     = 1.5
	DefaultGroupXAlignTolerancePt = 10.0
	DefaultBackgroundAreaFraction = 0.70
	DefaultVisionTrustThreshold   = 0.75
	DefaultMatchIoU               = 0.50
	DefaultWatermarkPaddingPx     = 10
	DefaultMinTextWidthPx         = 10.0
	DefaultMinTextHeightPx        = 5.0
	DefaultMinSpanFontSize        = 4.0
	DefaultMinGraphicWidthPx      = 30.0
	DefaultMinGraphicHeightPx     = 30.0
	DefaultMinGraphicAreaPx       = 1000.0
	DefaultMaxTextPerGraphic      = 3
	DefaultGraphicPaddingPx       = 10
	DefaultMinLuminanceContrast   = 0.35
	DefaultMaxConcurrentPages     = 5
	DefaultVisionTimeoutSeconds   = 30
	DefaultVisionMaxRetries       = 3
	DefaultVisionRetryBaseSeconds = 2
	DefaultSlideWidthInches       = 16.0
	DefaultSlideHeightInches      = 9.0
)

// WatermarkRegion locates the known fixed-position watermark relative to the
// page render (fractions of width/height, top-left origin).
type WatermarkRegion struct {
	RelativeLeft   float64 `json:"relative_left"`
	RelativeTop    float64 `json:"relative_top"`
	RelativeWidth  float64 `json:"relative_width"`
	RelativeHeight float64 `json:"relative_height"`
}

// Config holds every tunable the pipeline consumes.
type Config struct {
	Version string `json:"version"`

	// Vision API
	VisionEnabled bool   `json:"vision_enabled"`
	VisionAPIKey  string `json:"vision_api_key,omitempty"`
	VisionBaseURL string `json:"vision_base_url,omitempty"`
	VisionModel   string `json:"vision_model"`

	// Rendering
	AnalysisDPI int `json:"analysis_dpi"`
	ExportDPI   int `json:"export_dpi"`

	// Layer separation thresholds
	DedupOverlapThreshold  float64 `json:"dedup_overlap_threshold"`
	LineHeightMultiple     float64 `json:"line_height_multiple"`
	GroupXAlignTolerancePt float64 `json:"group_x_align_tolerance_pt"`
	BackgroundAreaFraction float64 `json:"background_area_fraction"`
	VisionTrustThreshold   float64 `json:"vision_trust_threshold"`
	MatchIoU               float64 `json:"match_iou"`

	// Element filters
	MinTextWidthPx     float64 `json:"min_text_width_px"`
	MinTextHeightPx    float64 `json:"min_text_height_px"`
	MinSpanFontSize    float64 `json:"min_span_font_size"`
	MinGraphicWidthPx  float64 `json:"min_graphic_width_px"`
	MinGraphicHeightPx float64 `json:"min_graphic_height_px"`
	MinGraphicAreaPx   float64 `json:"min_graphic_area_px"`
	MaxTextPerGraphic  int     `json:"max_text_per_graphic"`
	GraphicPaddingPx   int     `json:"graphic_padding_px"`

	// Watermark
	WatermarkPatterns  []string        `json:"watermark_patterns"`
	WatermarkRegion    WatermarkRegion `json:"watermark_region"`
	WatermarkPaddingPx int             `json:"watermark_padding_px"`

	// Readability
	MinLuminanceContrast float64 `json:"min_luminance_contrast"`

	// Concurrency and retries
	MaxConcurrentPages    int `json:"max_concurrent_pages"`
	VisionTimeoutSeconds  int `json:"vision_timeout_seconds"`
	VisionMaxRetries      int `json:"vision_max_retries"`
	VisionRetryBaseSecond int `json:"vision_retry_base_seconds"`

	// Output
	SlideWidthInches  float64 `json:"slide_width_inches"`
	SlideHeightInches float64 `json:"slide_height_inches"`
	WorkDirectory     string  `json:"work_directory,omitempty"`

	LogLevel string `json:"log_level,omitempty"`
}

// Default returns a Config populated with the known-good defaults.
func Default() *Config {
	return &Config{
		Version:                ConfigVersion,
		VisionEnabled:          true,
		VisionModel:            DefaultVisionModel,
		AnalysisDPI:            DefaultAnalysisDPI,
		ExportDPI:              DefaultExportDPI,
		DedupOverlapThreshold:  DefaultDedupOverlapThreshold,
		LineHeightMultiple:     DefaultLineHeightMultiple,
		GroupXAlignTolerancePt: DefaultGroupXAlignTolerancePt,
		BackgroundAreaFraction: DefaultBackgroundAreaFraction,
		VisionTrustThreshold:   DefaultVisionTrustThreshold,
		MatchIoU:               DefaultMatchIoU,
		MinTextWidthPx:         DefaultMinTextWidthPx,
		MinTextHeightPx:        DefaultMinTextHeightPx,
		MinSpanFontSize:        DefaultMinSpanFontSize,
		MinGraphicWidthPx:      DefaultMinGraphicWidthPx,
		MinGraphicHeightPx:     DefaultMinGraphicHeightPx,
		MinGraphicAreaPx:       DefaultMinGraphicAreaPx,
		MaxTextPerGraphic:      DefaultMaxTextPerGraphic,
		GraphicPaddingPx:       DefaultGraphicPaddingPx,
		WatermarkPatterns: []string{
			"NotebookLM",
			"Notebook LM",
			"Made with NotebookLM",
		},
		WatermarkRegion: WatermarkRegion{
			RelativeLeft:   0.914,
			RelativeTop:    0.956,
			RelativeWidth:  0.084,
			RelativeHeight: 0.041,
		},
		WatermarkPaddingPx:    DefaultWatermarkPaddingPx,
		MinLuminanceContrast:  DefaultMinLuminanceContrast,
		MaxConcurrentPages:    DefaultMaxConcurrentPages,
		VisionTimeoutSeconds:  DefaultVisionTimeoutSeconds,
		VisionMaxRetries:      DefaultVisionMaxRetries,
		VisionRetryBaseSecond: DefaultVisionRetryBaseSeconds,
		SlideWidthInches:      DefaultSlideWidthInches,
		SlideHeightInches:     DefaultSlideHeightInches,
	}
}

// VisionTimeout returns the vision call timeout as a duration.
func (c *Config) VisionTimeout() time.Duration {
	if c.VisionTimeoutSeconds <= 0 {
		return DefaultVisionTimeoutSeconds * time.Second
	}
	return time.Duration(c.VisionTimeoutSeconds) * time.Second
}

// VisionRetryBaseDelay returns the base backoff delay for rate-limit retries.
func (c *Config) VisionRetryBaseDelay() time.Duration {
	if c.VisionRetryBaseSecond <= 0 {
		return DefaultVisionRetryBaseSeconds * time.Second
	}
	return time.Duration(c.VisionRetryBaseSecond) * time.Second
}

// Manager loads and persists the configuration file.
type Manager struct {
	configPath string
	config     *Config
}

// NewManager creates a Manager with the specified config path. If configPath
// is empty, it uses the default path in the user's home directory.
func NewManager(configPath string) (*Manager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(homeDir, ".config", "slide-reconstructor", DefaultConfigFileName)
	}

	return &Manager{
		configPath: configPath,
		config:     Default(),
	}, nil
}

// Load loads configuration from the config file. A missing file is not an
// error; defaults are used. Invalid JSON falls back to defaults with a
// warning. Zero-valued tunables are backfilled with defaults so an older
// config file keeps working after new tunables are added.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
			m.config = Default()
			return nil
		}
		return err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		logger.Warn("invalid config file format, using defaults",
			logger.String("path", m.configPath), logger.Err(err))
		m.config = Default()
		return nil
	}

	m.config = cfg
	m.applyDefaults()
	logger.Info("configuration loaded",
		logger.String("path", m.configPath),
		logger.String("version", m.config.Version),
		logger.Bool("visionEnabled", m.config.VisionEnabled))
	return nil
}

// applyDefaults backfills zero values with the known-good defaults.
func (m *Manager) applyDefaults() {
	c := m.config
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.VisionModel == "" {
		c.VisionModel = d.VisionModel
	}
	if c.AnalysisDPI <= 0 {
		c.AnalysisDPI = d.AnalysisDPI
	}
	if c.ExportDPI <= 0 {
		c.ExportDPI = d.ExportDPI
	}
	if c.DedupOverlapThreshold <= 0 {
		c.DedupOverlapThreshold = d.DedupOverlapThreshold
	}
	if c.LineHeightMultiple <= 0 {
		c.LineHeightMultiple = d.LineHeightMultiple
	}
	if c.GroupXAlignTolerancePt <= 0 {
		c.GroupXAlignTolerancePt = d.GroupXAlignTolerancePt
	}
	if c.BackgroundAreaFraction <= 0 {
		c.BackgroundAreaFraction = d.BackgroundAreaFraction
	}
	if c.VisionTrustThreshold <= 0 {
		c.VisionTrustThreshold = d.VisionTrustThreshold
	}
	if c.MatchIoU <= 0 {
		c.MatchIoU = d.MatchIoU
	}
	if c.MinTextWidthPx <= 0 {
		c.MinTextWidthPx = d.MinTextWidthPx
	}
	if c.MinTextHeightPx <= 0 {
		c.MinTextHeightPx = d.MinTextHeightPx
	}
	if c.MinSpanFontSize <= 0 {
		c.MinSpanFontSize = d.MinSpanFontSize
	}
	if c.MinGraphicWidthPx <= 0 {
		c.MinGraphicWidthPx = d.MinGraphicWidthPx
	}
	if c.MinGraphicHeightPx <= 0 {
		c.MinGraphicHeightPx = d.MinGraphicHeightPx
	}
	if c.MinGraphicAreaPx <= 0 {
		c.MinGraphicAreaPx = d.MinGraphicAreaPx
	}
	if c.MaxTextPerGraphic <= 0 {
		c.MaxTextPerGraphic = d.MaxTextPerGraphic
	}
	if c.GraphicPaddingPx <= 0 {
		c.GraphicPaddingPx = d.GraphicPaddingPx
	}
	if len(c.WatermarkPatterns) == 0 {
		c.WatermarkPatterns = d.WatermarkPatterns
	}
	if c.WatermarkRegion.RelativeWidth <= 0 || c.WatermarkRegion.RelativeHeight <= 0 {
		c.WatermarkRegion = d.WatermarkRegion
	}
	if c.WatermarkPaddingPx <= 0 {
		c.WatermarkPaddingPx = d.WatermarkPaddingPx
	}
	if c.MinLuminanceContrast <= 0 {
		c.MinLuminanceContrast = d.MinLuminanceContrast
	}
	if c.MaxConcurrentPages <= 0 {
		c.MaxConcurrentPages = d.MaxConcurrentPages
	}
	if c.VisionTimeoutSeconds <= 0 {
		c.VisionTimeoutSeconds = d.VisionTimeoutSeconds
	}
	if c.VisionMaxRetries <= 0 {
		c.VisionMaxRetries = d.VisionMaxRetries
	}
	if c.VisionRetryBaseSecond <= 0 {
		c.VisionRetryBaseSecond = d.VisionRetryBaseSecond
	}
	if c.SlideWidthInches <= 0 {
		c.SlideWidthInches = d.SlideWidthInches
	}
	if c.SlideHeightInches <= 0 {
		c.SlideHeightInches = d.SlideHeightInches
	}
}

// Save persists the current configuration to the config file.
func (m *Manager) Save() error {
	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return err
	}

	logger.Info("configuration saved", logger.String("path", m.configPath))
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	if m.config == nil {
		return Default()
	}
	return m.config
}

// GetAPIKey returns the vision API key, preferring the config file value and
// falling back to the environment variable.
func (m *Manager) GetAPIKey() string {
	if m.config != nil && m.config.VisionAPIKey != "" {
		return m.config.VisionAPIKey
	}
	return os.Getenv(EnvVisionAPIKey)
}

// GetBaseURL returns the vision API base URL, preferring the config file
// value and falling back to the environment variable.
func (m *Manager) GetBaseURL() string {
	if m.config != nil && m.config.VisionBaseURL != "" {
		return m.config.VisionBaseURL
	}
	return os.Getenv(EnvVisionBaseURL)
}

// GetConfigPath returns the path to the config file.
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
