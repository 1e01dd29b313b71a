package session

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/vizon/ai"
	"github.com/spektr-org/vizon/assistant"
	"github.com/spektr-org/vizon/extract"
	"github.com/spektr-org/vizon/schema"
	"github.com/spektr-org/vizon/store"
)

var salesCSV = []byte(`Region,Product,Units,Revenue
North,Widget,10,100.50
South,Widget,5,60
North,Gadget,,50.25
East,Gadget,8,40
`)

var otherCSV = []byte(`City,Population
Lyon,522000
Nice,342000
`)

// gate is an extractor that blocks until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gate) Extract(ctx context.Context, in extract.Input) (*extract.RawRecordSet, error) {
	close(g.entered)
	<-g.release
	return extract.NewTabular(nil).Extract(ctx, in)
}

func answering(calls *int32, text string) ai.Model {
	return ai.ModelFunc(func(context.Context, ai.Request) (*ai.Response, error) {
		atomic.AddInt32(calls, 1)
		return &ai.Response{Text: text}, nil
	})
}

func newPipeline(m ai.Model) *Pipeline {
	return &Pipeline{
		Extractors: map[Kind]extract.Extractor{KindTabular: extract.NewTabular(nil)},
		Assistant:  assistant.New(m, nil, assistant.WithRetryBackoff(time.Millisecond)),
	}
}

func csvInput(data []byte) extract.Input {
	return extract.Input{Name: "sales.csv", Data: data}
}

func TestLoadBuildsDashboard(t *testing.T) {
	var calls int32
	m := NewManager(newPipeline(answering(&calls, "ok")))
	s, err := m.Create(context.Background())
	require.NoError(t, err)

	_, err = s.Dashboard()
	assert.ErrorIs(t, err, ErrNoData)

	d, err := s.Load(context.Background(), csvInput(salesCSV), KindAuto)
	require.NoError(t, err)
	assert.Equal(t, 4, d.Summary.RowCount)
	assert.NotEmpty(t, d.Charts)

	got, err := s.Dashboard()
	require.NoError(t, err)
	assert.Same(t, d, got)

	info := s.Info()
	assert.Equal(t, 4, info.Rows)
	assert.Equal(t, "sales.csv", info.Source)
}

func TestLoadFailureKeepsPreviousState(t *testing.T) {
	var calls int32
	m := NewManager(newPipeline(answering(&calls, "ok")))
	s, err := m.Create(context.Background())
	require.NoError(t, err)

	_, err = s.Load(context.Background(), csvInput(salesCSV), KindTabular)
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), "hi")
	require.NoError(t, err)
	before, _ := s.Table()

	_, err = s.Load(context.Background(), csvInput([]byte("a,b\n")), KindTabular)
	assert.ErrorIs(t, err, schema.ErrEmptyInput)

	_, err = s.Load(context.Background(), extract.Input{Name: "notes.pdf", Data: []byte("%PDF")}, KindTabular)
	assert.Equal(t, extract.KindUnsupported, extract.KindOf(err))

	after, err := s.Table()
	require.NoError(t, err)
	assert.Same(t, before, after)
	assert.Len(t, s.History(), 2, "conversation kept")
}

func TestLoadClearsConversation(t *testing.T) {
	var calls int32
	m := NewManager(newPipeline(answering(&calls, "ok")))
	s, _ := m.Create(context.Background())

	_, err := s.Load(context.Background(), csvInput(salesCSV), KindTabular)
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), "hi")
	require.NoError(t, err)
	require.Len(t, s.History(), 2)

	_, err = s.Load(context.Background(), extract.Input{Name: "cities.csv", Data: otherCSV}, KindTabular)
	require.NoError(t, err)
	assert.Empty(t, s.History())
	tbl, _ := s.Table()
	assert.Equal(t, []string{"City", "Population"}, tbl.Names())
}

func TestActionsNeedData(t *testing.T) {
	var calls int32
	m := NewManager(newPipeline(answering(&calls, "ok")))
	s, _ := m.Create(context.Background())

	_, err := s.Ask(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoData)
	_, err = s.Visualize(context.Background(), "chart")
	assert.ErrorIs(t, err, ErrNoData)
	assert.ErrorIs(t, s.ExportCSV(&bytes.Buffer{}), ErrNoData)
	assert.Zero(t, calls)
}

func TestUnknownKind(t *testing.T) {
	var calls int32
	m := NewManager(newPipeline(answering(&calls, "ok")))
	s, _ := m.Create(context.Background())

	_, err := s.Load(context.Background(), extract.Input{URL: "https://example.com"}, KindAuto)
	assert.ErrorIs(t, err, ErrUnknownKind, "no web extractor configured")

	_, err = ParseKind("pdf")
	assert.ErrorIs(t, err, ErrUnknownKind)
	k, err := ParseKind(" Excel ")
	require.NoError(t, err)
	assert.Equal(t, KindTabular, k)
}

func TestDetect(t *testing.T) {
	assert.Equal(t, KindWeb, Detect(extract.Input{URL: "https://x.test"}))
	assert.Equal(t, KindImage, Detect(extract.Input{Name: "receipt.JPG"}))
	assert.Equal(t, KindImage, Detect(extract.Input{Name: "blob", MIMEType: "image/png"}))
	assert.Equal(t, KindTabular, Detect(extract.Input{Name: "data.xlsx"}))
}

func TestBusySession(t *testing.T) {
	var calls int32
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	p := newPipeline(answering(&calls, "ok"))
	p.Extractors[KindTabular] = g
	m := NewManager(p)
	s, _ := m.Create(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := s.Load(context.Background(), csvInput(salesCSV), KindTabular)
		done <- err
	}()
	<-g.entered

	_, err := s.Ask(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.Load(context.Background(), csvInput(salesCSV), KindTabular)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.Dashboard()
	assert.ErrorIs(t, err, ErrNoData, "reads see the last committed state")

	close(g.release)
	require.NoError(t, <-done)
	_, err = s.Dashboard()
	assert.NoError(t, err)
}

func TestAskFailureLeavesHistory(t *testing.T) {
	var calls int32
	down := ai.ModelFunc(func(context.Context, ai.Request) (*ai.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, ai.ErrUnavailable
	})
	m := NewManager(newPipeline(down))
	s, _ := m.Create(context.Background())
	_, err := s.Load(context.Background(), csvInput(salesCSV), KindTabular)
	require.NoError(t, err)

	_, err = s.Ask(context.Background(), "total?")
	var ue *assistant.UnavailableError
	require.True(t, errors.As(err, &ue))
	assert.EqualValues(t, 2, calls)
	assert.Empty(t, s.History())
}

func TestSessionsAreIsolated(t *testing.T) {
	var calls int32
	m := NewManager(newPipeline(answering(&calls, "ok")))
	a, _ := m.Create(context.Background())
	b, _ := m.Create(context.Background())
	require.NotEqual(t, a.ID, b.ID)

	_, err := a.Load(context.Background(), csvInput(salesCSV), KindTabular)
	require.NoError(t, err)
	_, err = b.Table()
	assert.ErrorIs(t, err, ErrNoData)

	got, err := m.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, m.Delete(context.Background(), a.ID))
	_, err = m.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete(context.Background(), a.ID), ErrNotFound)
	assert.Len(t, m.List(), 1)
}

func TestExportCSV(t *testing.T) {
	var calls int32
	m := NewManager(newPipeline(answering(&calls, "ok")))
	s, _ := m.Create(context.Background())
	_, err := s.Load(context.Background(), extract.Input{Name: "cities.csv", Data: otherCSV}, KindTabular)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.ExportCSV(&buf))
	assert.Equal(t, "City,Population\nLyon,522000\nNice,342000\n", buf.String())
}

func TestRestoreFromStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	var calls int32
	p := newPipeline(answering(&calls, "North leads."))

	m := NewManager(p, WithStore(st))
	s, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = s.Load(ctx, csvInput(salesCSV), KindTabular)
	require.NoError(t, err)
	_, err = s.Ask(ctx, "who leads?")
	require.NoError(t, err)
	empty, err := m.Create(ctx)
	require.NoError(t, err)

	fresh := NewManager(p, WithStore(st))
	n, err := fresh.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	again, err := fresh.Get(s.ID)
	require.NoError(t, err)
	d, err := again.Dashboard()
	require.NoError(t, err)
	assert.Equal(t, 4, d.Summary.RowCount)
	h := again.History()
	require.Len(t, h, 2)
	assert.Equal(t, "who leads?", h[0].Content)
	assert.Equal(t, "North leads.", h[1].Content)

	e, err := fresh.Get(empty.ID)
	require.NoError(t, err)
	_, err = e.Table()
	assert.ErrorIs(t, err, ErrNoData)
}
