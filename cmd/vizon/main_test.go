package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spektr-org/vizon/assistant"
	"github.com/spektr-org/vizon/config"
	"github.com/spektr-org/vizon/engine"
	"github.com/spektr-org/vizon/schema"
	"github.com/spektr-org/vizon/session"
)

func TestWriteResultCSVSingleSeries(t *testing.T) {
	var buf bytes.Buffer
	err := writeResultCSV(&buf, &engine.Result{ChartConfig: &engine.ChartConfig{
		XAxis:  "Region",
		YAxis:  "Revenue",
		Series: []engine.ChartSeries{{Name: "Revenue", Data: []engine.ChartPoint{{Label: "North", Value: 150.75}, {Label: "South", Value: 60}}}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Region,Revenue\nNorth,150.75\nSouth,60\n", buf.String())
}

func TestWriteResultCSVMultiSeriesAlignsLabels(t *testing.T) {
	var buf bytes.Buffer
	err := writeResultCSV(&buf, &engine.Result{ChartConfig: &engine.ChartConfig{
		Series: []engine.ChartSeries{
			{Name: "Widget", Data: []engine.ChartPoint{{Label: "North", Value: 100}, {Label: "South", Value: 60}}},
			{Name: "Gadget", Data: []engine.ChartPoint{{Label: "East", Value: 40}, {Label: "North", Value: 50.25}}},
		},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Label,Widget,Gadget\nNorth,100,50.25\nSouth,60,\nEast,,40\n", buf.String())
}

func TestWriteResultCSVTableAndText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResultCSV(&buf, &engine.Result{TableData: &engine.TableData{
		Columns: []engine.Column{{Key: "region", Label: "Region"}, {Key: "value", Label: "Total"}},
		Rows:    [][]string{{"North", "150.75"}},
	}}))
	assert.Equal(t, "Region,Total\nNorth,150.75\n", buf.String())

	buf.Reset()
	require.NoError(t, writeResultCSV(&buf, &engine.Result{Reply: "Total 250.75", Data: &engine.TextData{Value: "250.75"}, DisplayUnit: "EUR"}))
	assert.Equal(t, "Summary,Value,Unit\nTotal 250.75,250.75,EUR\n", buf.String())

	buf.Reset()
	require.NoError(t, writeResultCSV(&buf, nil))
	assert.Equal(t, "Result,No data\n", buf.String())
}

func TestWriteVisualizationText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeVisualizationText(&buf, &assistant.Visualization{
		Interpretation: assistant.Interpretation{Summary: "Revenue by region"},
		Result:         &engine.Result{Reply: "North leads."},
	}))
	assert.Equal(t, "Revenue by region\nNorth leads.\n", buf.String())

	buf.Reset()
	require.NoError(t, writeVisualizationText(&buf, &assistant.Visualization{}))
	assert.Equal(t, "No result.\n", buf.String())
}

func TestWriteDescriptorText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeDescriptorText(&buf, schema.Descriptor{
		Name: "sales.csv",
		Rows: 4,
		Dimensions: []schema.DimensionMeta{
			{Key: "region", Type: "text", CardinalityHint: "low"},
			{Key: "month", Type: "date", CardinalityHint: "low", IsTemporal: true},
		},
		Measures:       []schema.MeasureMeta{{Key: "revenue", Role: "measure", Unit: "EUR"}},
		SkippedColumns: []schema.SkippedColumn{{Column: "Order ID", Reason: "unique per row"}},
	}))
	text := buf.String()
	assert.True(t, strings.HasPrefix(text, "sales.csv (4 rows)\n"), text)
	assert.Contains(t, text, "low temporal\n")
	assert.Contains(t, text, "measure [EUR]\n")
	assert.Contains(t, text, "- skipped Order ID: unique per row\n")
}

func TestFmtNum(t *testing.T) {
	assert.Equal(t, "42", fmtNum(42))
	assert.Equal(t, "3.14", fmtNum(3.14159))
	assert.Equal(t, "-7", fmtNum(-7))
}

func TestIsURL(t *testing.T) {
	assert.True(t, isURL("https://example.com/table"))
	assert.True(t, isURL("http://localhost:8080"))
	assert.False(t, isURL("sales.csv"))
	assert.False(t, isURL("https://"))
	assert.False(t, isURL("ftp://example.com"))
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o600))

	in, kind, err := readInput(path)
	require.NoError(t, err)
	assert.Equal(t, "sales.csv", in.Name)
	assert.Equal(t, session.KindAuto, kind)

	in, kind, err = readInput("https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", in.URL)
	assert.Equal(t, session.KindWeb, kind)

	_, _, err = readInput(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

func TestExtractCommandWritesCSV(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "vizon.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("ai:\n  api_key: test-key\nlogging:\n  level: error\n"), 0o600))
	data := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(data, []byte("Region,Revenue\nNorth,100.50\nSouth,\n"), 0o600))
	out := filepath.Join(dir, "out.csv")

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	rootCmd.SetArgs([]string{"extract", "--config", cfgPath, "--format", "csv", "--out", out, data})
	t.Cleanup(func() { outFile = "" })
	require.NoError(t, rootCmd.Execute())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Region,Revenue\nNorth,100.5\nSouth,\n", string(got))
}

func TestDashboardCommandText(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "vizon.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("ai:\n  api_key: test-key\nlogging:\n  level: error\n"), 0o600))
	data := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(data, []byte("Region,Revenue\nNorth,100.50\nSouth,60\nNorth,40\n"), 0o600))
	out := filepath.Join(dir, "dash.txt")

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	rootCmd.SetArgs([]string{"dashboard", "--config", cfgPath, "--format", "text", "--out", out, data})
	t.Cleanup(func() { outFile = "" })
	require.NoError(t, rootCmd.Execute())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	text := string(got)
	assert.True(t, strings.HasPrefix(text, "Dashboard\n3 rows, 2 columns\n"), text)
	assert.Contains(t, text, "Region: 2 distinct")
	assert.Contains(t, text, "[treemap]")
}

func TestMissingAPIKeyFailsAtStartup(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "vizon.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  level: error\n"), 0o600))
	data := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(data, []byte("a,b\n1,2\n"), 0o600))
	absent := filepath.Join(dir, "absent.csv")

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	for _, args := range [][]string{
		{"extract", data},
		{"schema", data},
		{"dashboard", data},
		{"ask", absent, "total?"},
		{"visualize", absent, "total?"},
		{"serve"},
	} {
		rootCmd.SetArgs(append(args, "--config", cfgPath))
		err := rootCmd.Execute()
		assert.ErrorIs(t, err, config.ErrNoAPIKey, args[0])
	}
}

func TestVersionRunsWithoutAPIKey(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "vizon.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  level: error\n"), 0o600))
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })
	rootCmd.SetArgs([]string{"version", "--config", cfgPath})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "vizon "+version+"\n", out.String())
}

func TestRequiresAPIKey(t *testing.T) {
	assert.True(t, requiresAPIKey(extractCmd))
	assert.True(t, requiresAPIKey(serveCmd))
	assert.False(t, requiresAPIKey(versionCmd))
}

func TestLoadSessionWarnsWhenModelCannotBeBuilt(t *testing.T) {
	prevCfg, prevLogger := cfg, logger
	t.Cleanup(func() { cfg, logger = prevCfg, prevLogger })

	core, logs := observer.New(zap.WarnLevel)
	logger = zap.New(core)
	cfg = config.Default()
	cfg.AI.APIKey = "test-key"
	cfg.AI.Timeout = 0 // rejected by Validate inside newModel

	data := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(data, []byte("Region,Revenue\nNorth,100.50\n"), 0o600))

	s, err := loadSession(context.Background(), data, false)
	require.NoError(t, err)
	tbl, err := s.Table()
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Rows())

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "AI model unavailable, continuing without it", logs.All()[0].Message)

	_, err = loadSession(context.Background(), data, true)
	assert.Error(t, err, "a command that needs the model still fails")
}
