// Package vision obtains a layout guess for a rendered slide image from a
// multimodal chat model. The guess is advisory: callers treat a failed or
// malformed response as an absent guess and continue geometry-only.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"

	"slide-reconstructor/internal/config"
	"slide-reconstructor/internal/logger"
	"slide-reconstructor/internal/slide"
)

const systemPrompt = `You are a presentation layout analyst. You receive a rendered slide image and return its layout as strict JSON, nothing else. All bounding boxes are pixel coordinates [x0, y0, x1, y1] with the origin at the top-left of the image. Respond with exactly this structure:
{
  "text_elements": [
    {"text": "...", "bbox": [x0, y0, x1, y1], "role": "title|subtitle|body|caption|label", "font_size": "large|medium|small", "confidence": 0.0}
  ],
  "graphics": [
    {"type": "icon|diagram|chart|image|decoration", "bbox": [x0, y0, x1, y1], "description": "...", "confidence": 0.0}
  ],
  "background_image": {"bbox": [x0, y0, x1, y1], "description": "...", "confidence": 0.0},
  "layout_type": "title_slide|content|two_column|image_heavy|quote",
  "overall_confidence": 0.0
}
Omit "background_image" when the slide has no photographic or illustrated background. Do not invent elements you cannot see. Confidence values are between 0 and 1.`

// Analyzer sends rendered page images to the vision model and parses the
// returned layout guess. The generate hook is the only seam to the chat
// model, so tests can substitute a canned responder.
type Analyzer struct {
	cfg       *config.Config
	retryBase time.Duration
	generate  func(ctx context.Context, input []*schema.Message) (*schema.Message, error)
}

// NewAnalyzer creates an Analyzer backed by an OpenAI-compatible chat model.
// An empty API key is an error; callers decide beforehand whether vision is
// enabled at all.
func NewAnalyzer(ctx context.Context, cfg *config.Config, apiKey, baseURL string) (*Analyzer, error) {
	if apiKey == "" {
		return nil, slide.NewError(slide.ErrVisionUnavailable, "vision API key is not configured", nil)
	}

	// Layout analysis wants reproducible answers, not creative ones.
	temperature := float32(0)
	chatModelConfig := &openai.ChatModelConfig{
		Model:       cfg.VisionModel,
		APIKey:      apiKey,
		Temperature: &temperature,
	}
	if baseURL != "" {
		chatModelConfig.BaseURL = baseURL
	}

	cm, err := openai.NewChatModel(ctx, chatModelConfig)
	if err != nil {
		return nil, slide.NewError(slide.ErrVisionUnavailable, "failed to create vision chat model", err)
	}

	return &Analyzer{
		cfg:       cfg,
		retryBase: cfg.VisionRetryBaseDelay(),
		generate: func(ctx context.Context, input []*schema.Message) (*schema.Message, error) {
			return cm.Generate(ctx, input)
		},
	}, nil
}

// AnalyzePage asks the model for a layout guess of one rendered page. The
// call is bounded by the configured timeout per attempt and retried with
// exponential backoff on transient failures. Any terminal failure is returned
// as a VISION_UNAVAILABLE error; the caller degrades to geometry-only.
func (a *Analyzer) AnalyzePage(ctx context.Context, pageIndex int, img image.Image) (*slide.VisionGuess, error) {
	dataURL, err := encodePNGDataURL(img)
	if err != nil {
		return nil, slide.NewErrorWithPage(slide.ErrVisionUnavailable,
			"failed to encode page image", pageIndex, err)
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{
					Type: schema.ChatMessagePartTypeText,
					Text: "Analyze the layout of this slide.",
				},
				{
					Type: schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{
						URL: dataURL,
					},
				},
			},
		},
	}

	var lastErr error
	retryDelay := a.retryBase
	if retryDelay <= 0 {
		retryDelay = a.cfg.VisionRetryBaseDelay()
	}

	for attempt := 0; attempt <= a.cfg.VisionMaxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("retrying vision analysis",
				logger.Int("page", pageIndex),
				logger.Int("attempt", attempt),
				logger.String("delay", retryDelay.String()),
				logger.Err(lastErr))
			select {
			case <-ctx.Done():
				return nil, slide.NewErrorWithPage(slide.ErrCancelled, "vision analysis cancelled", pageIndex, ctx.Err())
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.VisionTimeout())
		response, err := a.generate(attemptCtx, messages)
		cancel()

		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, slide.NewErrorWithPage(slide.ErrCancelled, "vision analysis cancelled", pageIndex, ctx.Err())
			}
			if !isRetryableError(err) {
				break
			}
			continue
		}

		bounds := img.Bounds()
		guess, err := ParseGuess(response.Content, pageIndex, bounds.Dx(), bounds.Dy())
		if err != nil {
			// A malformed response is not worth retrying; the model is
			// unlikely to produce valid JSON on a verbatim retry either.
			lastErr = err
			break
		}

		logger.Debug("vision guess received",
			logger.Int("page", pageIndex),
			logger.Int("textElements", len(guess.TextElements)),
			logger.Int("graphics", len(guess.Graphics)),
			logger.Float64("confidence", guess.OverallConfidence))
		return guess, nil
	}

	return nil, slide.NewErrorWithPage(slide.ErrVisionUnavailable,
		"vision analysis failed", pageIndex, lastErr)
}

// isRetryableError distinguishes transient API failures (rate limits, server
// errors, timeouts) from permanent ones (bad credentials, invalid requests).
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	permanent := []string{
		"401", "unauthorized", "invalid api key", "invalid_api_key",
		"403", "forbidden",
		"400", "invalid request", "bad request",
	}
	for _, p := range permanent {
		if strings.Contains(msg, p) {
			return false
		}
	}

	transient := []string{
		"429", "rate limit", "too many requests",
		"500", "502", "503", "504",
		"timeout", "deadline exceeded", "connection reset", "connection refused",
		"overloaded", "temporarily unavailable",
	}
	for _, t := range transient {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

// encodePNGDataURL encodes an image as a base64 PNG data URL for the
// image_url message part.
func encodePNGDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return fmt.Sprintf("data:image/png;base64,%s",
		base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}
