package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spektr-org/vizon/ai"
	"github.com/spektr-org/vizon/engine"
)

// ============================================================================
// ASSISTANT — Natural language questions over one table
// ============================================================================
// Two entry points share one model:
//   Ask       → prose answer grounded in a projection of the table
//   Visualize → QuerySpec translation, computed locally by the engine
//
// Every model call goes through ai.Retrying: one retry on transient failure,
// then *UnavailableError. History only grows on a successful Ask.
// ============================================================================

// Assistant answers questions about a ChatContext's table.
type Assistant struct {
	model   ai.Model
	logger  *zap.Logger
	now     func() time.Time
	backoff time.Duration
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithRetryBackoff sets the pause before the single retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(a *Assistant) { a.backoff = d }
}

// WithClock sets the time source for history timestamps and prompts.
func WithClock(now func() time.Time) Option {
	return func(a *Assistant) {
		if now != nil {
			a.now = now
		}
	}
}

// New wraps model with the bounded retry unless it already is one.
func New(model ai.Model, logger *zap.Logger, opts ...Option) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assistant{logger: logger, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	if r, ok := model.(*ai.Retrying); ok {
		a.model = r
	} else {
		a.model = ai.WithRetry(model, a.backoff, logger)
	}
	return a
}

// Ask answers question about cc.Table as a data analyst. On success both
// turns are appended to cc's history; on any failure history is untouched.
func (a *Assistant) Ask(ctx context.Context, cc *ChatContext, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if cc == nil || cc.Table == nil {
		return "", ErrNoTable
	}

	prompt := buildAskPrompt(BuildDataContext(cc.Table), cc.history, question)
	a.logger.Debug("ask",
		zap.String("question", truncate(question, 80)),
		zap.Int("history", cc.Len()),
		zap.Int("prompt_bytes", len(prompt)))

	resp, err := a.model.Generate(ctx, ai.Request{
		System: AnalystSystemPrompt,
		Parts:  []ai.Part{ai.Text(prompt)},
	})
	if err != nil {
		a.logger.Warn("ask failed", zap.String("question", truncate(question, 80)), zap.Error(err))
		return "", &UnavailableError{Question: question, Err: err}
	}

	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return "", &UnavailableError{Question: question, Err: ai.ErrMalformed}
	}

	cc.record(question, answer, a.now())
	return answer, nil
}

// Visualization is a computed Visualize answer plus the model's preview.
type Visualization struct {
	Result         *engine.Result `json:"result"`
	Interpretation Interpretation `json:"interpretation"`
	// Fallback is set when the model's JSON could not be used and the
	// result is a plain row listing.
	Fallback bool `json:"fallback"`
}

// Visualize translates question into a QuerySpec and executes it locally.
// A malformed model answer falls back to listing the rows. History is not
// changed.
func (a *Assistant) Visualize(ctx context.Context, cc *ChatContext, question string) (*Visualization, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if cc == nil || cc.Table == nil {
		return nil, ErrNoTable
	}

	view := engine.NewTableView(cc.Table)
	system := BuildQueryPrompt(cc.Table, BuildDataSummary(view), a.now())
	prompt := "USER QUERY: " + question + ratioHint(question) + "\n\nRespond with valid JSON only:"

	resp, err := a.model.Generate(ctx, ai.Request{
		System: system,
		Parts:  []ai.Part{ai.Text(prompt)},
		JSON:   true,
	})
	if err != nil && !errors.Is(err, ai.ErrMalformed) {
		return nil, &UnavailableError{Question: question, Err: err}
	}

	v := &Visualization{}
	var spec engine.QuerySpec
	text := ""
	if resp != nil {
		text = resp.Text
	}
	if tr, perr := parseResponse(text, a.logger); perr == nil {
		spec = tr.QuerySpec
		v.Interpretation = tr.Interpretation
	} else {
		a.logger.Warn("query translation unusable, listing rows", zap.Error(perr))
		spec = fallbackSpec()
		v.Interpretation = parseFallbackInterpretation(text)
		v.Fallback = true
	}

	res, err := engine.Execute(spec, view, engine.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	v.Result = res

	a.logger.Info("visualize",
		zap.String("intent", spec.Intent),
		zap.String("visualize", spec.Visualize),
		zap.Float64("confidence", spec.Confidence),
		zap.Bool("fallback", v.Fallback))
	return v, nil
}
