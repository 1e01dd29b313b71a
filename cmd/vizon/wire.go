package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/spektr-org/vizon/ai"
	"github.com/spektr-org/vizon/assistant"
	"github.com/spektr-org/vizon/config"
	"github.com/spektr-org/vizon/engine"
	"github.com/spektr-org/vizon/extract"
	"github.com/spektr-org/vizon/session"
)

// ============================================================================
// WIRING — config → model → extractors → session pipeline
// ============================================================================

// newModel builds the retrying Gemini model. It fails without an API key.
func newModel(ctx context.Context, c *config.Config) (ai.Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	g, err := ai.NewGemini(ctx, c.Gemini(), logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("AI model ready", zap.String("model", g.Name()))
	return ai.WithRetry(g, c.AI.RetryBackoff, logger), nil
}

// newPipeline wires every extractor the configuration allows. model may be
// nil: then only tabular files and pages with a <table> can be loaded.
func newPipeline(c *config.Config, model ai.Model) *session.Pipeline {
	p := &session.Pipeline{
		Extractors: map[session.Kind]extract.Extractor{
			session.KindTabular: extract.NewTabular(logger).WithSheet(sheet),
		},
		Dashboard: []engine.Option{engine.WithTopN(c.Dashboard.TopN), engine.WithLogger(logger)},
		Logger:    logger,
	}

	var webModel ai.Model
	if model != nil {
		webModel = model
		p.Extractors[session.KindImage] = extract.NewVision(model, logger)
		p.Assistant = assistant.New(model, logger)
		if c.AI.Refine {
			p.Refiner = model
		}
	}
	p.Extractors[session.KindWeb] = extract.NewWeb(extract.NewHTTPFetcher(c.Extract.FetchTimeout), webModel, logger).
		WithMaxChars(c.Extract.MaxPageChars)
	if c.Extract.Render || render {
		p.Extractors[session.KindRendered] = extract.NewWeb(extract.NewRodFetcher(c.Extract.FetchTimeout, logger), webModel, logger).
			WithMaxChars(c.Extract.MaxPageChars)
	}
	return p
}

// needsModel reports whether loading arg requires the AI service up front.
func needsModel(arg string) bool {
	return asImage || session.Detect(inputFor(arg, nil)) == session.KindImage
}

// readInput turns a CLI argument into an extract input and its kind.
func readInput(arg string) (extract.Input, session.Kind, error) {
	if isURL(arg) {
		kind := session.KindWeb
		if render {
			kind = session.KindRendered
		}
		return extract.Input{URL: arg}, kind, nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return extract.Input{}, "", fmt.Errorf("read input: %w", err)
	}
	in := inputFor(arg, data)
	kind := session.KindAuto
	if asImage {
		kind = session.KindImage
	}
	return in, kind, nil
}

func inputFor(arg string, data []byte) extract.Input {
	if isURL(arg) {
		return extract.Input{URL: arg}
	}
	return extract.Input{Name: filepath.Base(arg), Data: data}
}

func isURL(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Host != ""
}

// loadSession runs the pipeline on arg in a fresh, unpersisted session.
func loadSession(ctx context.Context, arg string, requireModel bool) (*session.Session, error) {
	model, err := newModel(ctx, cfg)
	if err != nil {
		if requireModel || needsModel(arg) {
			return nil, err
		}
		// tabular files and pages with a <table> still load without it
		logger.Warn("AI model unavailable, continuing without it", zap.Error(err))
		model = nil
	}

	in, kind, err := readInput(arg)
	if err != nil {
		return nil, err
	}
	m := session.NewManager(newPipeline(cfg, model))
	s, err := m.Create(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.Load(ctx, in, kind); err != nil {
		return nil, err
	}
	return s, nil
}
