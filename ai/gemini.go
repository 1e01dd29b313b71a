package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// ============================================================================
// GEMINI — Model backed by the Google Gen AI SDK
// ============================================================================
// Generation settings mirror the original data extraction engine: low
// temperature so tables come back the same way twice, large output budget so
// long receipts and wiki tables fit in one response.
// ============================================================================

// DefaultModel is used when GeminiConfig.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini model.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Timeout         time.Duration // per call; default 30s
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

// DefaultGeminiConfig returns the generation settings used by vizon.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:          apiKey,
		Model:           DefaultModel,
		Timeout:         30 * time.Second,
		Temperature:     0.2,
		TopP:            0.95,
		TopK:            64,
		MaxOutputTokens: 8192,
	}
}

// Gemini implements Model using google.golang.org/genai.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
	logger *zap.Logger
}

// NewGemini creates a Gemini model. The API key is required.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 8192
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	return &Gemini{client: client, cfg: cfg, logger: logger}, nil
}

// Name returns the configured model name.
func (g *Gemini) Name() string { return g.cfg.Model }

// Generate sends one request and returns the concatenated text parts of the
// first candidate.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	if len(req.Parts) == 0 {
		return nil, fmt.Errorf("gemini: %w: empty prompt", ErrRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if len(p.Data) > 0 {
			parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(p.Text))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	conf := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.cfg.Temperature),
		TopP:            genai.Ptr(g.cfg.TopP),
		TopK:            genai.Ptr(g.cfg.TopK),
		MaxOutputTokens: g.cfg.MaxOutputTokens,
	}
	if req.System != "" {
		conf.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		conf.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, conf)
	if err != nil {
		g.logger.Warn("gemini call failed",
			zap.String("model", g.cfg.Model),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err))
		return nil, classify(err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("gemini: %w: no text in response", ErrMalformed)
	}

	g.logger.Debug("gemini call",
		zap.String("model", g.cfg.Model),
		zap.Int("parts", len(parts)),
		zap.Bool("json", req.JSON),
		zap.Duration("latency", time.Since(start)),
		zap.Int("chars", len(text)))

	return &Response{Text: text, Model: g.cfg.Model}, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if p != nil && p.Text != "" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// classify maps SDK and transport errors onto the package sentinels.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("gemini: %w: %w", ErrUnavailable, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	if code, ok := apiStatus(err); ok {
		if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500 {
			return fmt.Errorf("gemini: %w: %w", ErrUnavailable, err)
		}
		return fmt.Errorf("gemini: %w: %w", ErrRejected, err)
	}

	// transport failures (DNS, reset, TLS) are treated as an outage
	return fmt.Errorf("gemini: %w: %w", ErrUnavailable, err)
}

func apiStatus(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}
