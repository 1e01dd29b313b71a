package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spektr-org/vizon/ai"
)

// ── Tabular ────────────────────────────────────────────────

func TestTabularCSV(t *testing.T) {
	data := []byte("\xef\xbb\xbfRegion,Sales\nNorth,100\nSouth,\nEast,42,extra\n")

	rs, err := NewTabular(nil).Extract(context.Background(), Input{Name: "sales.csv", Data: data})
	require.NoError(t, err)

	assert.Equal(t, "sales.csv", rs.Source)
	assert.Equal(t, []string{"Region", "Sales"}, rs.Header)
	require.Len(t, rs.Rows, 3)
	assert.Equal(t, []any{"South", ""}, rs.Rows[1])
	assert.Equal(t, 3, rs.Width(), "ragged rows widen the record set")
}

func TestTabularSniffsDelimiter(t *testing.T) {
	cases := []struct {
		in   string
		want rune
	}{
		{"a;b;c\n1;2;3", ';'},
		{"a\tb\n1\t2", '\t'},
		{"a|b|c\n", '|'},
		{`"x;y",b` + "\n1,2", ','},
		{"single\nvalue", ','},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sniffDelimiter([]byte(tc.in)), tc.in)
	}
}

func TestTabularXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Item", "Qty"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Pen", 3}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{"Ink", 12}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	rs, err := NewTabular(nil).Extract(context.Background(), Input{Name: "stock.xlsx", Data: buf.Bytes()})
	require.NoError(t, err)

	assert.Equal(t, []string{"Item", "Qty"}, rs.Header, "blank leading rows are skipped")
	require.Len(t, rs.Rows, 2)
	assert.Equal(t, []any{"Ink", "12"}, rs.Rows[1])
}

func TestTabularErrors(t *testing.T) {
	tab := NewTabular(nil)

	_, err := tab.Extract(context.Background(), Input{Name: "empty.csv"})
	assert.Equal(t, KindUnreadable, KindOf(err))

	_, err = tab.Extract(context.Background(), Input{Name: "report.pdf", Data: []byte("%PDF-1.4")})
	assert.Equal(t, KindUnsupported, KindOf(err))

	_, err = tab.Extract(context.Background(), Input{Name: "broken.xlsx", Data: []byte("PK\x03\x04garbage")})
	assert.Equal(t, KindUnreadable, KindOf(err))

	var extractErr *Error
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, "broken.xlsx", extractErr.Source)
}

func TestDetectFormatWithoutExtension(t *testing.T) {
	assert.Equal(t, formatCSV, detectFormat(Input{Data: []byte("a,b\n1,2\n")}))
	assert.Equal(t, formatXLSX, detectFormat(Input{Data: []byte("PK\x03\x04....")}))
	assert.Equal(t, formatXLSX, detectFormat(Input{MIMEType: mimeXLSX, Data: []byte("x")}))
	assert.Equal(t, formatUnknown, detectFormat(Input{Data: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}}))
}

// ── DecodeRecords ──────────────────────────────────────────

func TestDecodeRecordsKeepsKeyOrder(t *testing.T) {
	text := "```json\n[{\"zeta\": \"a\", \"alpha\": 1.5}, {\"alpha\": 2, \"mid\": null, \"zeta\": \"b\"}]\n```"

	rs, err := DecodeRecords(text)
	require.NoError(t, err)

	want := &RawRecordSet{
		Header: []string{"zeta", "alpha", "mid"},
		Rows: [][]any{
			{"a", json.Number("1.5"), nil},
			{"b", json.Number("2"), nil},
		},
	}
	if diff := cmp.Diff(want, rs); diff != "" {
		t.Errorf("DecodeRecords mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRecordsShapes(t *testing.T) {
	t.Run("wrapped", func(t *testing.T) {
		rs, err := DecodeRecords(`{"title": "x", "rows": [{"a": 1}]}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, rs.Header)
		assert.Len(t, rs.Rows, 1)
	})

	t.Run("single object", func(t *testing.T) {
		rs, err := DecodeRecords(`{"total": "12.50", "store": "Kiosk"}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"total", "store"}, rs.Header)
		assert.Len(t, rs.Rows, 1)
	})

	t.Run("row arrays with header", func(t *testing.T) {
		rs, err := DecodeRecords(`[["name","qty"],["pen",3],["ink",4]]`)
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "qty"}, rs.Header)
		assert.Len(t, rs.Rows, 2)
	})

	t.Run("row arrays without header", func(t *testing.T) {
		rs, err := DecodeRecords(`[["1","2"],["3","4"]]`)
		require.NoError(t, err)
		assert.Nil(t, rs.Header)
		assert.Len(t, rs.Rows, 2)
	})

	t.Run("nested values flatten to JSON", func(t *testing.T) {
		rs, err := DecodeRecords(`[{"a": {"y": 1, "x": [true]}}]`)
		require.NoError(t, err)
		assert.Equal(t, `{"y":1,"x":[true]}`, rs.Rows[0][0])
	})

	t.Run("empty array", func(t *testing.T) {
		rs, err := DecodeRecords("Here you go: []")
		require.NoError(t, err)
		assert.Empty(t, rs.Rows)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := DecodeRecords("sorry, I cannot help with that")
		assert.ErrorIs(t, err, ai.ErrMalformed)

		_, err = DecodeRecords(`[{"a": 1`)
		assert.ErrorIs(t, err, ai.ErrMalformed)
	})
}

// ── Vision ─────────────────────────────────────────────────

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestVisionExtract(t *testing.T) {
	var got ai.Request
	model := ai.ModelFunc(func(ctx context.Context, req ai.Request) (*ai.Response, error) {
		got = req
		return &ai.Response{Text: `[{"item":"Coffee","amount":"3.50"},{"item":"Bagel","amount":"2.25"}]`}, nil
	})

	rs, err := NewVision(model, nil).Extract(context.Background(), Input{Name: "receipt.png", Data: pngHeader})
	require.NoError(t, err)

	assert.True(t, got.JSON)
	assert.Equal(t, ExtractionSystemPrompt, got.System)
	require.Len(t, got.Parts, 2)
	assert.Equal(t, "image/png", got.Parts[1].MIMEType)

	assert.Equal(t, "receipt.png", rs.Source)
	assert.Equal(t, []string{"item", "amount"}, rs.Header)
	assert.Len(t, rs.Rows, 2)
}

func TestVisionErrors(t *testing.T) {
	failing := ai.ModelFunc(func(ctx context.Context, req ai.Request) (*ai.Response, error) {
		return nil, ai.ErrUnavailable
	})
	v := NewVision(failing, nil)

	_, err := v.Extract(context.Background(), Input{Name: "notes.txt", Data: []byte("hello")})
	assert.Equal(t, KindUnsupported, KindOf(err))

	_, err = v.Extract(context.Background(), Input{Name: "x.png", Data: pngHeader})
	assert.Equal(t, KindAIService, KindOf(err))
	assert.ErrorIs(t, err, ai.ErrUnavailable)

	called := false
	counting := NewVision(ai.ModelFunc(func(ctx context.Context, req ai.Request) (*ai.Response, error) {
		called = true
		return &ai.Response{Text: "[]"}, nil
	}), nil)
	unsupported := []Input{
		{Name: "chart", Data: []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")},
		{Name: "chart.gif", Data: []byte("GIF89a")},
		{Name: "x.svg", Data: []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`), MIMEType: "image/svg+xml"},
		{Name: "x.png", Data: pngHeader, MIMEType: "image/bmp"},
	}
	for _, in := range unsupported {
		_, err := counting.Extract(context.Background(), in)
		assert.Equal(t, KindUnsupported, KindOf(err), in.Name)
	}
	assert.False(t, called, "unsupported images never reach the model")

	prose := ai.ModelFunc(func(ctx context.Context, req ai.Request) (*ai.Response, error) {
		return &ai.Response{Text: "I see a cat."}, nil
	})
	_, err = NewVision(prose, nil).Extract(context.Background(), Input{Name: "x.png", Data: pngHeader})
	assert.Equal(t, KindAIService, KindOf(err))
	assert.ErrorIs(t, err, ai.ErrMalformed)
}

// ── Web ────────────────────────────────────────────────────

const wikiPage = `<html><body>
<table class="nav"><tr><td>Home</td><td>About</td></tr></table>
<table class="wikitable">
  <thead><tr><th>Country</th><th>Capital</th><th>Population</th></tr></thead>
  <tbody>
    <tr><td>France</td><td>Paris</td><td>68,000,000<sup>[1]</sup></td></tr>
    <tr><td rowspan="2">Germany</td><td>Berlin</td><td>84,000,000</td></tr>
    <tr><td>Bonn</td><td>330,000</td></tr>
    <tr><td colspan="2">Unknown</td><td></td></tr>
  </tbody>
</table>
</body></html>`

type staticFetcher struct {
	page *Page
	err  error
}

func (f staticFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.page
	p.URL = url
	return &p, nil
}

func TestWebPicksLargestTable(t *testing.T) {
	w := NewWeb(staticFetcher{page: &Page{Body: []byte(wikiPage)}}, nil, nil)

	rs, err := w.Extract(context.Background(), Input{URL: "https://en.wikipedia.org/wiki/Capitals"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Country", "Capital", "Population"}, rs.Header)
	want := [][]any{
		{"France", "Paris", "68,000,000"},
		{"Germany", "Berlin", "84,000,000"},
		{"Germany", "Bonn", "330,000"},
		{"Unknown", "Unknown", ""},
	}
	if diff := cmp.Diff(want, rs.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestWebFallsBackToModel(t *testing.T) {
	var prompt string
	model := ai.ModelFunc(func(ctx context.Context, req ai.Request) (*ai.Response, error) {
		prompt = req.Parts[0].Text
		return &ai.Response{Text: `[{"product":"Widget","price":"9.99"}]`}, nil
	})
	body := `<html><head><script>var secret = 1;</script></head><body><h1>Shop</h1><ul><li>Widget $9.99</li></ul></body></html>`
	w := NewWeb(staticFetcher{page: &Page{Body: []byte(body)}}, model, nil)

	rs, err := w.Extract(context.Background(), Input{URL: "https://shop.example.com"})
	require.NoError(t, err)
	assert.Len(t, rs.Rows, 1)
	assert.Contains(t, prompt, "Widget")
	assert.NotContains(t, prompt, "secret", "scripts are sanitized away")
}

func TestWebWithoutTableOrModelIsEmpty(t *testing.T) {
	w := NewWeb(staticFetcher{page: &Page{Body: []byte("<p>nothing here</p>")}}, nil, nil)
	rs, err := w.Extract(context.Background(), Input{URL: "http://example.com"})
	require.NoError(t, err)
	assert.Empty(t, rs.Rows)
}

func TestWebErrors(t *testing.T) {
	w := NewWeb(staticFetcher{err: errors.New("connection refused")}, nil, nil)

	_, err := w.Extract(context.Background(), Input{URL: "ftp://example.com/file"})
	assert.Equal(t, KindUnsupported, KindOf(err))

	_, err = w.Extract(context.Background(), Input{URL: "https://example.com"})
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Contains(t, err.Error(), "https://example.com")
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		assert.Contains(t, r.Header.Get("User-Agent"), "vizon")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(wikiPage))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(0)
	page, err := f.Fetch(context.Background(), srv.URL+"/table")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(page.Body), "wikitable"))
	assert.Equal(t, "text/html", page.ContentType)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)

	// end to end through the extractor
	rs, err := NewWeb(f, nil, nil).Extract(context.Background(), Input{URL: srv.URL + "/table"})
	require.NoError(t, err)
	assert.Len(t, rs.Rows, 4)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "abc", truncateRunes("abc", 10))
}
