package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/spektr-org/vizon/ai"
)

// ============================================================================
// WEB — tables scraped from a URL
// ============================================================================
// 1. Fetch the page (HTTP, or headless Chrome when rendering is needed).
// 2. Parse every <table>; the one with the most cells wins.
// 3. No table and a model configured → sanitize, convert to markdown,
//    truncate and ask the model to structure it.
// ============================================================================

// DefaultMaxPromptChars bounds the page text sent to the model.
const DefaultMaxPromptChars = 10000

const webPrompt = `The following is the text content of a web page converted to markdown.
Extract the main data table or list of records it contains. If there is nothing tabular, return [].

PAGE (%s):
`

// Web extracts tables from web pages.
type Web struct {
	fetcher  Fetcher
	model    ai.Model
	logger   *zap.Logger
	maxChars int
	policy   *bluemonday.Policy
	md       *converter.Converter
}

// NewWeb creates a web extractor. model may be nil, in which case pages
// without a <table> yield an empty record set.
func NewWeb(fetcher Fetcher, model ai.Model, logger *zap.Logger) *Web {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(DefaultFetchTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Web{
		fetcher:  fetcher,
		model:    model,
		logger:   logger,
		maxChars: DefaultMaxPromptChars,
		policy:   bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// WithMaxChars caps the page text sent to the model. Non-positive keeps
// the current limit.
func (w *Web) WithMaxChars(n int) *Web {
	if n <= 0 {
		return w
	}
	c := *w
	c.maxChars = n
	return &c
}

// Extract fetches in.URL and returns its largest table.
func (w *Web) Extract(ctx context.Context, in Input) (*RawRecordSet, error) {
	src := in.Label()
	u, err := url.Parse(strings.TrimSpace(in.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, newErrorf(KindUnsupported, src, "expected an http or https URL")
	}

	page, err := w.fetcher.Fetch(ctx, u.String())
	if err != nil {
		return nil, newError(KindNetwork, src, err)
	}

	doc, err := html.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, newError(KindUnreadable, src, err)
	}

	tables := FindTables(doc)
	if best := largestTable(tables); best != nil {
		best.Source = src
		w.logger.Info("web table extraction",
			zap.String("source", src),
			zap.Int("tables", len(tables)),
			zap.Int("columns", best.Width()),
			zap.Int("rows", len(best.Rows)))
		return best, nil
	}

	if w.model == nil {
		w.logger.Info("web page has no table", zap.String("source", src))
		return &RawRecordSet{Source: src, Rows: [][]any{}}, nil
	}
	return w.extractWithModel(ctx, src, page)
}

func (w *Web) extractWithModel(ctx context.Context, src string, page *Page) (*RawRecordSet, error) {
	text := w.pageMarkdown(page)
	if strings.TrimSpace(text) == "" {
		return &RawRecordSet{Source: src, Rows: [][]any{}}, nil
	}

	resp, err := w.model.Generate(ctx, ai.Request{
		System: ExtractionSystemPrompt,
		Parts:  []ai.Part{ai.Text(fmt.Sprintf(webPrompt, page.URL) + text)},
		JSON:   true,
	})
	if err != nil {
		return nil, newError(KindAIService, src, err)
	}

	rs, err := DecodeRecords(resp.Text)
	if err != nil {
		return nil, newError(KindAIService, src, err)
	}
	rs.Source = src
	w.logger.Info("web model extraction",
		zap.String("source", src),
		zap.Int("prompt_chars", len(text)),
		zap.Int("rows", len(rs.Rows)))
	return rs, nil
}

// pageMarkdown sanitizes the page and renders it as truncated markdown.
func (w *Web) pageMarkdown(page *Page) string {
	clean := w.policy.SanitizeBytes(page.Body)
	md, err := w.md.ConvertString(string(clean), converter.WithDomain(page.URL))
	if err != nil {
		w.logger.Debug("markdown conversion failed, using plain text", zap.Error(err))
		md = plainText(clean)
	}
	return truncateRunes(md, w.maxChars)
}

func plainText(b []byte) string {
	doc, err := html.Parse(bytes.NewReader(b))
	if err != nil {
		return string(b)
	}
	return strings.Join(strings.Fields(nodeText(doc)), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ============================================================================
// HTML TABLES
// ============================================================================

// FindTables parses every <table> under n, nested ones included.
// Rowspan and colspan are expanded so each row has one value per column.
func FindTables(n *html.Node) []*RawRecordSet {
	var out []*RawRecordSet
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			if t := parseTable(n); t != nil {
				out = append(out, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// largestTable returns the table with the most cells. The first wins ties.
func largestTable(tables []*RawRecordSet) *RawRecordSet {
	var best *RawRecordSet
	bestCells := 0
	for _, t := range tables {
		cells := len(t.Rows) * t.Width()
		if cells > bestCells {
			best, bestCells = t, cells
		}
	}
	return best
}

type htmlCell struct {
	text    string
	header  bool
	rowspan int
	colspan int
}

func parseTable(tableNode *html.Node) *RawRecordSet {
	var rows [][]htmlCell
	theadRows := 0

	addRows := func(section *html.Node, inHead bool) {
		for c := section.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Tr {
				if r := parseRow(c, inHead); len(r) > 0 {
					rows = append(rows, r)
					if inHead {
						theadRows++
					}
				}
			}
		}
	}

	for c := tableNode.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Thead:
			addRows(c, true)
		case atom.Tbody, atom.Tfoot:
			addRows(c, false)
		case atom.Tr:
			if r := parseRow(c, false); len(r) > 0 {
				rows = append(rows, r)
			}
		}
	}
	if len(rows) == 0 {
		return nil
	}

	grid := expandSpans(rows)

	rs := &RawRecordSet{Rows: [][]any{}}
	start := 0
	if theadRows > 0 || allHeaderCells(rows[0]) {
		rs.Header = grid[0]
		start = 1
	}
	for _, r := range grid[start:] {
		rs.Rows = append(rs.Rows, stringsToAny(r))
	}
	return rs
}

func parseRow(tr *html.Node, inHead bool) []htmlCell {
	var row []htmlCell
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		cell := htmlCell{
			text:    strings.Join(strings.Fields(nodeText(c)), " "),
			header:  inHead || c.DataAtom == atom.Th,
			rowspan: 1,
			colspan: 1,
		}
		for _, a := range c.Attr {
			switch a.Key {
			case "rowspan":
				cell.rowspan = spanValue(a.Val)
			case "colspan":
				cell.colspan = spanValue(a.Val)
			}
		}
		row = append(row, cell)
	}
	return row
}

func spanValue(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 1
	}
	if n > 1000 {
		return 1000
	}
	return n
}

func allHeaderCells(row []htmlCell) bool {
	for _, c := range row {
		if !c.header {
			return false
		}
	}
	return true
}

// expandSpans lays cells onto a grid, copying spanned text into every slot
// it covers.
func expandSpans(rows [][]htmlCell) [][]string {
	type carry struct {
		text      string
		remaining int
	}
	pending := map[int]carry{}
	grid := make([][]string, 0, len(rows))

	for _, row := range rows {
		var out []string
		col := 0
		fill := func() {
			for {
				p, ok := pending[col]
				if !ok {
					return
				}
				out = append(out, p.text)
				if p.remaining <= 1 {
					delete(pending, col)
				} else {
					pending[col] = carry{p.text, p.remaining - 1}
				}
				col++
			}
		}

		for _, cell := range row {
			fill()
			for i := 0; i < cell.colspan; i++ {
				out = append(out, cell.text)
				if cell.rowspan > 1 {
					pending[col] = carry{cell.text, cell.rowspan - 1}
				}
				col++
			}
		}
		fill()
		grid = append(grid, out)
	}
	return grid
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			case atom.Br:
				b.WriteByte(' ')
			case atom.Sup:
				// footnote markers like [1]
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
