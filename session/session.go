package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spektr-org/vizon/ai"
	"github.com/spektr-org/vizon/assistant"
	"github.com/spektr-org/vizon/engine"
	"github.com/spektr-org/vizon/extract"
	"github.com/spektr-org/vizon/helpers"
	"github.com/spektr-org/vizon/schema"
	"github.com/spektr-org/vizon/store"
)

// ============================================================================
// SESSION — One user's table, dashboard and conversation
// ============================================================================
// Actions run one at a time:
//   Load      → extract → normalize → (refine) → dashboard, swapped in whole
//   Ask       → assistant answer, transcript grows on success
//   Visualize → QuerySpec executed against the current table
//
// A second action while one is running fails fast with ErrBusy. Reads
// (Dashboard, Table, History) never wait on a running action: they see the
// last committed state.
// ============================================================================

var (
	// ErrBusy is returned when an action is already running in the session.
	ErrBusy = errors.New("session is busy")
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrNoData is returned when an action needs a table and none is loaded.
	ErrNoData = errors.New("no data loaded")
	// ErrUnknownKind is returned for source kinds without an extractor.
	ErrUnknownKind = errors.New("unknown source kind")
)

// Kind selects the extractor for an input.
type Kind string

const (
	KindAuto     Kind = "auto"
	KindTabular  Kind = "tabular"
	KindImage    Kind = "image"
	KindWeb      Kind = "web"
	KindRendered Kind = "rendered" // web, fetched with a headless browser
)

// ParseKind maps user input ("csv", "excel", "url", ...) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return KindAuto, nil
	case "tabular", "csv", "excel", "xlsx", "file":
		return KindTabular, nil
	case "image", "vision", "receipt", "photo":
		return KindImage, nil
	case "web", "url", "link":
		return KindWeb, nil
	case "rendered", "render", "browser":
		return KindRendered, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Detect picks a Kind from the input itself.
func Detect(in extract.Input) Kind {
	if in.URL != "" {
		return KindWeb
	}
	if strings.HasPrefix(in.MIMEType, "image/") {
		return KindImage
	}
	name := strings.ToLower(in.Name)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".webp", ".heic", ".heif"} {
		if strings.HasSuffix(name, ext) {
			return KindImage
		}
	}
	return KindTabular
}

// Pipeline is the shared machinery every session runs its actions through.
type Pipeline struct {
	Extractors map[Kind]extract.Extractor
	Assistant  *assistant.Assistant
	// Refiner enables AI column enrichment after normalization. Optional;
	// refinement failures never fail a load.
	Refiner   ai.Model
	Dashboard []engine.Option
	Logger    *zap.Logger
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Info is a point-in-time description of a session.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Source    string    `json:"source,omitempty"`
	Rows      int       `json:"rows"`
	Columns   int       `json:"columns"`
	Messages  int       `json:"messages"`
}

// Session holds one user's state.
type Session struct {
	ID string

	pipeline *Pipeline
	store    *store.Store
	logger   *zap.Logger
	now      func() time.Time

	action sync.Mutex // held for the whole of an action

	mu        sync.RWMutex // guards the fields below
	table     *schema.Table
	dashboard *engine.Dashboard
	chat      *assistant.ChatContext
	created   time.Time
	updated   time.Time
}

func newSession(id string, p *Pipeline, st *store.Store, now func() time.Time) *Session {
	at := now()
	return &Session{
		ID:       id,
		pipeline: p,
		store:    st,
		logger:   p.logger().With(zap.String("session", id)),
		now:      now,
		chat:     assistant.NewChatContext(nil),
		created:  at,
		updated:  at,
	}
}

func (s *Session) begin() error {
	if !s.action.TryLock() {
		return ErrBusy
	}
	return nil
}

// Load runs the full pipeline on in. On success the table and dashboard are
// replaced and the conversation starts over; on failure nothing changes.
func (s *Session) Load(ctx context.Context, in extract.Input, kind Kind) (*engine.Dashboard, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.action.Unlock()

	if kind == "" || kind == KindAuto {
		kind = Detect(in)
	}
	ex, ok := s.pipeline.Extractors[kind]
	if !ok || ex == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	start := s.now()
	raw, err := ex.Extract(ctx, in)
	if err != nil {
		return nil, err
	}
	t, err := schema.Normalize(raw)
	if err != nil {
		return nil, err
	}
	if s.pipeline.Refiner != nil {
		// best effort: Refine hands back t untouched on failure
		t, _ = schema.Refine(ctx, s.pipeline.Refiner, t, s.logger)
	}
	d, err := engine.BuildDashboard(t, s.pipeline.Dashboard...)
	if err != nil {
		return nil, err
	}

	at := s.now()
	if s.store != nil {
		if err := s.store.SaveDataset(ctx, s.ID, t, at); err != nil {
			return nil, fmt.Errorf("persist dataset: %w", err)
		}
	}

	s.mu.Lock()
	s.table = t
	s.dashboard = d
	s.chat.Reset(t)
	s.updated = at
	s.mu.Unlock()

	s.logger.Info("dataset loaded",
		zap.String("kind", string(kind)),
		zap.String("source", t.Source),
		zap.Int("rows", t.Rows()),
		zap.Int("columns", t.Width()),
		zap.Int("charts", len(d.Charts)),
		zap.Duration("took", at.Sub(start)))
	return d, nil
}

// Ask answers question about the loaded table.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	if err := s.begin(); err != nil {
		return "", err
	}
	defer s.action.Unlock()

	// ask against a copy so readers never see a half-recorded exchange
	s.mu.RLock()
	t := s.table
	scratch := assistant.NewChatContext(t)
	scratch.Replay(s.chat.History())
	s.mu.RUnlock()
	if t == nil {
		return "", ErrNoData
	}

	before := scratch.Len()
	answer, err := s.pipeline.Assistant.Ask(ctx, scratch, question)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.chat = scratch
	s.updated = s.now()
	s.mu.Unlock()

	if s.store != nil {
		added := scratch.History()[before:]
		if err := s.store.AppendMessages(ctx, s.ID, added...); err != nil {
			s.logger.Warn("persist messages failed", zap.Error(err))
		}
	}
	return answer, nil
}

// Visualize translates question into a chart, table or text answer.
func (s *Session) Visualize(ctx context.Context, question string) (*assistant.Visualization, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.action.Unlock()

	s.mu.RLock()
	loaded := s.table != nil
	s.mu.RUnlock()
	if !loaded {
		return nil, ErrNoData
	}
	return s.pipeline.Assistant.Visualize(ctx, s.chat, question)
}

// Dashboard returns the current dashboard.
func (s *Session) Dashboard() (*engine.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dashboard == nil {
		return nil, ErrNoData
	}
	return s.dashboard, nil
}

// Table returns the current table. Callers must not modify it.
func (s *Session) Table() (*schema.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.table == nil {
		return nil, ErrNoData
	}
	return s.table, nil
}

// History returns the conversation so far.
func (s *Session) History() []assistant.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chat.History()
}

// ExportCSV writes the current table as CSV.
func (s *Session) ExportCSV(w io.Writer) error {
	t, err := s.Table()
	if err != nil {
		return err
	}
	return helpers.WriteCSV(w, t)
}

// Info describes the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := Info{
		ID:        s.ID,
		CreatedAt: s.created,
		UpdatedAt: s.updated,
		Messages:  s.chat.Len(),
	}
	if s.table != nil {
		info.Source = s.table.Source
		info.Rows = s.table.Rows()
		info.Columns = s.table.Width()
	}
	return info
}

// restore installs persisted state without touching the store.
func (s *Session) restore(t *schema.Table, msgs []assistant.Message, created, updated time.Time) error {
	d, err := engine.BuildDashboard(t, s.pipeline.Dashboard...)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t
	s.dashboard = d
	s.chat.Reset(t)
	s.chat.Replay(msgs)
	s.created = created
	s.updated = updated
	return nil
}
