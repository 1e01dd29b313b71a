package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spektr-org/vizon/config"
	"github.com/spektr-org/vizon/internal/logging"
)

// ============================================================================
// VIZON CLI — Data refinery: any table in, dashboard out
// ============================================================================

var version = "0.1.0"

var (
	configPath string
	verbose    bool
	outFile    string
	asImage    bool
	render     bool
	sheet      string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vizon",
	Short: "Turn spreadsheets, photos of tables and web pages into dashboards",
	Long: `vizon extracts a table from a CSV/XLSX file, an image or a web page,
normalizes it into typed columns, builds a dashboard and answers questions
about it.

Environment:
  GOOGLE_API_KEY / GEMINI_API_KEY   required by every command except version
  VIZON_MODEL, VIZON_DB, VIZON_ADDR override the config file`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging, verbose)
		if err != nil {
			return err
		}
		if requiresAPIKey(cmd) {
			return cfg.Validate()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// requiresAPIKey is false only for commands that never touch data.
func requiresAPIKey(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "version", "help", "completion":
			return false
		}
	}
	return true
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	for _, c := range []*cobra.Command{extractCmd, schemaCmd, dashboardCmd, askCmd, visualizeCmd} {
		c.Flags().StringVarP(&outFile, "out", "o", "", "write output to file instead of stdout")
		c.Flags().BoolVar(&asImage, "image", false, "treat the input as an image and extract with the vision model")
		c.Flags().BoolVar(&render, "render", false, "fetch web pages with a headless browser")
		c.Flags().StringVar(&sheet, "sheet", "", "workbook sheet to read (default: first non-empty)")
	}
	// one variable per command: pflag writes the default at definition time
	extractCmd.Flags().StringVarP(&extractFormat, "format", "f", "pretty", "output format: json, pretty, csv")
	schemaCmd.Flags().StringVarP(&schemaFormat, "format", "f", "pretty", "output format: json, pretty, text")
	dashboardCmd.Flags().StringVarP(&dashboardFormat, "format", "f", "pretty", "output format: json, pretty, text")
	askCmd.Flags().StringVarP(&askFormat, "format", "f", "text", "output format: text, json")
	visualizeCmd.Flags().StringVarP(&visualizeFormat, "format", "f", "json", "output format: json, pretty, text, csv")

	rootCmd.AddCommand(extractCmd, schemaCmd, dashboardCmd, askCmd, visualizeCmd, serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
