package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/felo/eml-reply/internal/config"
	"github.com/felo/eml-reply/internal/db"
	"github.com/felo/eml-reply/internal/handlers"
	"github.com/felo/eml-reply/internal/indexer"
	"github.com/felo/eml-reply/internal/parser"
	"github.com/felo/eml-reply/internal/reply"
	"github.com/felo/eml-reply/internal/scanner"
)

func main() {
	cfg := config.FromEnv()

	rootCmd := &cobra.Command{
		Use:           "eml-reply",
		Short:         "Extract the new reply text from email bodies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.ApplyFlags(cmd, cfg)
		},
	}
	config.RegisterFlags(rootCmd, cfg)

	rootCmd.AddCommand(newServeCmd(cfg), newIndexCmd(cfg), newParseCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	var noIndex bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Index the emails directory and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfg, !noIndex)
		},
	}
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Skip indexing on startup")
	return cmd
}

func serve(cfg *config.Config, indexOnStart bool) error {
	logger := cfg.NewLogger()

	rp, err := cfg.ReplyParser()
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	logger.WithFields(logrus.Fields{
		"db":     cfg.DBPath,
		"emails": cfg.EmailsPath,
		"locale": rp.Locale(),
	}).Info("Database opened")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(cfg.EmailsPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(cfg.EmailsPath, 0755); err != nil {
			return fmt.Errorf("failed to create emails directory: %w", err)
		}
		logger.WithField("path", cfg.EmailsPath).Info("Created emails directory; place .eml or .mbox files in it and POST /api/scan")
	} else if indexOnStart {
		idx := indexer.NewIndexer(database, cfg.EmailsPath, rp, logger).WithConcurrency(cfg.Workers)
		if _, err := idx.IndexAll(ctx); err != nil {
			logger.WithError(err).Warn("Indexing failed")
		}
	}

	h := handlers.New(database, cfg, rp, logger)

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // SSE progress streams stay open for the whole scan
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("url", cfg.URL()).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}
	h.Shutdown()

	logger.Info("Server stopped")
	return nil
}

func newIndexCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index new messages in the emails directory and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cfg.NewLogger()

			rp, err := cfg.ReplyParser()
			if err != nil {
				return err
			}

			database, err := db.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			idx := indexer.NewIndexer(database, cfg.EmailsPath, rp, logger).WithConcurrency(cfg.Workers)
			result, err := idx.IndexWithProgress(ctx, func(current, total int, path string) {
				logger.WithFields(logrus.Fields{
					"current": current,
					"total":   total,
					"file":    path,
				}).Debug("Indexed file")
			})
			if err != nil {
				return err
			}

			for _, source := range result.FailedSources {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s\n", source)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d files, %d new, %d skipped, %d failed\n",
				result.Files, result.NewIndexed, result.Skipped, result.Failed)
			return nil
		},
	}
}

func newParseCmd(cfg *config.Config) *cobra.Command {
	var showFragments bool

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Print the reply of a plain text body, .eml file or .mbox archive",
		Long: "Print the reply of a plain text body, .eml file or .mbox archive.\n" +
			"Without a file argument a plain text body is read from stdin.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rp, err := cfg.ReplyParser()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			emit := func(name, replyText string, fragments []parser.Fragment) error {
				if showFragments {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(struct {
						Name      string            `json:"name,omitempty"`
						Reply     string            `json:"reply"`
						Fragments []parser.Fragment `json:"fragments"`
					}{name, replyText, fragments})
				}
				if name != "" {
					fmt.Fprintf(out, "==> %s <==\n", name)
				}
				_, err := fmt.Fprintln(out, replyText)
				return err
			}

			if len(args) == 0 {
				return parseText(cmd.InOrStdin(), rp, emit)
			}

			path := args[0]
			switch {
			case scanner.IsMbox(path):
				return parser.WalkMboxFile(path, rp, func(index int, parsed *parser.ParsedEmail, err error) error {
					name := scanner.MemberSource(filepath.Base(path), index)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, err)
						return nil
					}
					return emit(name, parsed.Reply, parsed.Fragments)
				})
			case strings.EqualFold(filepath.Ext(path), ".eml"):
				parsed, err := parser.ParseEMLFile(path, rp)
				if err != nil {
					return err
				}
				return emit("", parsed.Reply, parsed.Fragments)
			default:
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				return parseText(f, rp, emit)
			}
		},
	}
	cmd.Flags().BoolVar(&showFragments, "fragments", false, "Print every fragment as JSON")
	return cmd
}

func parseText(r io.Reader, rp *reply.Parser, emit func(string, string, []parser.Fragment) error) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	msg := rp.Read(string(body))
	return emit("", msg.Reply(), parser.Fragments(msg))
}
