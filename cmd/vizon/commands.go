package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spektr-org/vizon/helpers"
	"github.com/spektr-org/vizon/schema"
	"github.com/spektr-org/vizon/server"
	"github.com/spektr-org/vizon/session"
	"github.com/spektr-org/vizon/store"
)

var (
	extractFormat   string
	schemaFormat    string
	dashboardFormat string
	askFormat       string
	visualizeFormat string
)

// ── extract ────────────────────────────────────────────────

var extractCmd = &cobra.Command{
	Use:   "extract FILE|URL",
	Short: "Extract and normalize a table, print it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd.Context(), args[0], false)
		if err != nil {
			return err
		}
		t, err := s.Table()
		if err != nil {
			return err
		}
		return withOutput(func(w io.Writer) error {
			if extractFormat == "csv" {
				return helpers.WriteCSV(w, t)
			}
			return writeJSON(w, t, extractFormat)
		})
	},
}

// ── schema ─────────────────────────────────────────────────

var schemaCmd = &cobra.Command{
	Use:   "schema FILE|URL",
	Short: "Print the detected dimensions and measures of an input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd.Context(), args[0], false)
		if err != nil {
			return err
		}
		t, err := s.Table()
		if err != nil {
			return err
		}
		d := schema.Describe(t)
		return withOutput(func(w io.Writer) error {
			if schemaFormat == "text" {
				return writeDescriptorText(w, d)
			}
			return writeJSON(w, d, schemaFormat)
		})
	},
}

// ── dashboard ──────────────────────────────────────────────

var dashboardCmd = &cobra.Command{
	Use:   "dashboard FILE|URL",
	Short: "Build the dashboard (summary metrics and charts) for an input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd.Context(), args[0], false)
		if err != nil {
			return err
		}
		d, err := s.Dashboard()
		if err != nil {
			return err
		}
		return withOutput(func(w io.Writer) error {
			if dashboardFormat == "text" {
				return writeDashboardText(w, d)
			}
			return writeJSON(w, d, dashboardFormat)
		})
	},
}

// ── ask ────────────────────────────────────────────────────

var askCmd = &cobra.Command{
	Use:   "ask FILE|URL QUESTION",
	Short: "Ask the assistant a question about an input",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd.Context(), args[0], true)
		if err != nil {
			return err
		}
		answer, err := s.Ask(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		return withOutput(func(w io.Writer) error {
			if askFormat == "json" {
				return writeJSON(w, map[string]string{"question": args[1], "answer": answer}, "pretty")
			}
			_, err := fmt.Fprintln(w, answer)
			return err
		})
	},
}

// ── visualize ──────────────────────────────────────────────

var visualizeCmd = &cobra.Command{
	Use:   "visualize FILE|URL QUESTION",
	Short: "Translate a question into a chart, table or text answer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd.Context(), args[0], true)
		if err != nil {
			return err
		}
		v, err := s.Visualize(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		logger.Debug("visualized",
			zap.String("type", v.Result.Type),
			zap.Bool("fallback", v.Fallback))

		return withOutput(func(w io.Writer) error {
			switch visualizeFormat {
			case "csv":
				return writeResultCSV(w, v.Result)
			case "text":
				return writeVisualizationText(w, v)
			default:
				return writeJSON(w, cliOutput{Query: args[1], Visualization: v}, visualizeFormat)
			}
		})
	},
}

// ── serve ──────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		model, err := newModel(ctx, cfg)
		if err != nil {
			return err
		}

		var opts []session.ManagerOption
		if cfg.Storage.Path != "" {
			st, err := store.Open(ctx, cfg.Storage.Path, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			opts = append(opts, session.WithStore(st))
		}
		manager := session.NewManager(newPipeline(cfg, model), opts...)
		if _, err := manager.Restore(ctx); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           server.New(manager, logger, server.WithMaxUpload(cfg.MaxUploadBytes())),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			logger.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

// ── version ────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "vizon %s\n", version)
		return err
	},
}

// withOutput runs write against --out or stdout.
func withOutput(write func(io.Writer) error) error {
	if outFile == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("output written", zap.String("path", outFile))
	return nil
}
