package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rxguard/rxguard/internal/config"
	"github.com/rxguard/rxguard/internal/domain/ai"
	"github.com/rxguard/rxguard/internal/domain/decision"
	"github.com/rxguard/rxguard/internal/domain/dose"
	"github.com/rxguard/rxguard/internal/domain/pipeline"
	"github.com/rxguard/rxguard/internal/domain/review"
	"github.com/rxguard/rxguard/internal/domain/source"
	"github.com/rxguard/rxguard/internal/domain/sut"
	"github.com/rxguard/rxguard/internal/platform/db"
	"github.com/rxguard/rxguard/internal/platform/export"
	"github.com/rxguard/rxguard/internal/platform/llm"
	"github.com/rxguard/rxguard/internal/platform/logging"
	"github.com/rxguard/rxguard/internal/platform/middleware"
	"github.com/rxguard/rxguard/internal/platform/portal"
)

// batchError marks a failure after configuration was accepted, so main can
// distinguish exit code 2 (batch abort) from 1 (configuration error).
type batchError struct{ err error }

func (e *batchError) Error() string { return e.err.Error() }
func (e *batchError) Unwrap() error { return e.err }

func main() {
	root := &cobra.Command{
		Use:           "rxguard",
		Short:         "Prescription compliance decision pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(processFileCmd())
	root.AddCommand(processLiveCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rxguard:", err)
		var be *batchError
		if errors.As(err, &be) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// app holds the shared components built once per invocation.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	dbh     *sql.DB
	archive decision.ArchiveRepository
	cache   dose.CacheRepository
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFile, cfg.IsDev())

	dbh, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx, dbh); err != nil {
		dbh.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &app{
		cfg:     cfg,
		log:     logger,
		dbh:     dbh,
		archive: decision.NewArchiveRepoSQLite(dbh),
		cache:   dose.NewCacheRepoSQLite(dbh),
	}, nil
}

func (a *app) close() {
	if a.dbh != nil {
		a.dbh.Close()
	}
}

// llmClient builds the configured provider, or nil when no key is set.
func (a *app) llmClient() llm.Client {
	if a.cfg.LLMAPIKey == "" {
		a.log.Warn().Msg("LLM_API_KEY not set, AI analyzer runs in SUT-only mode")
		return nil
	}
	if a.cfg.AIProvider == "secondary" {
		return llm.NewGeminiClient(a.cfg.LLMAPIKey, a.cfg.LLMModel)
	}
	return llm.NewOpenAIClient(a.cfg.LLMAPIKey, a.cfg.LLMModel, 60*time.Second)
}

func (a *app) pipeline(lookup dose.LookupSource) *pipeline.Service {
	sutSvc := sut.NewService(nil)
	doseSvc := dose.NewService(a.cache, lookup, a.log)
	aiSvc := ai.NewService(sutSvc, a.llmClient(), llm.Options{
		Temperature: a.cfg.LLMTemperature,
		MaxTokens:   a.cfg.LLMMaxTokens,
	}, a.log)
	return pipeline.NewService(doseSvc, sutSvc, aiSvc, a.archive,
		a.cfg.ProcessDelay(), a.cfg.AutoApproveThreshold, a.log)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printSummary(results []*decision.Result, stats *pipeline.Stats) {
	fmt.Printf("Batch %s: %d processed\n", stats.BatchID, stats.Total)
	fmt.Printf("  approved: %d  rejected: %d  held: %d  errors: %d\n",
		stats.Approved, stats.Rejected, stats.Held, stats.Errors)
	for _, r := range results {
		fmt.Printf("  %-20s %s\n", r.PrescriptionID, r.FinalDecision)
	}
}

func exportIfRequested(path string, results []*decision.Result, stats *pipeline.Stats) error {
	if path == "" {
		return nil
	}
	if err := export.Write(path, results, stats); err != nil {
		return &batchError{fmt.Errorf("export: %w", err)}
	}
	fmt.Printf("Results exported to %s\n", path)
	return nil
}

func processFileCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "process-file <path>",
		Short: "Process a serialized batch of prescriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			pipe := a.pipeline(nil)
			results, stats, err := pipe.ProcessFromFile(ctx, args[0])
			if err != nil {
				return &batchError{err}
			}
			printSummary(results, stats)
			return exportIfRequested(output, results, stats)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write results to a JSON export file")
	return cmd
}

func processLiveCmd() *cobra.Command {
	var (
		output string
		limit  int
		group  string
	)
	cmd := &cobra.Command{
		Use:   "process-live",
		Short: "Extract prescriptions from the portal and process them",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch strings.ToUpper(group) {
			case "A", "B", "C":
			default:
				return fmt.Errorf("--group must be A, B or C, got %q", group)
			}

			ctx, stop := signalContext()
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			driver, err := portal.NewRemoteDriver(ctx, a.cfg.BotURL, portal.SessionConfig{
				PortalURL: a.cfg.PortalURL,
				Username:  a.cfg.PortalUsername,
				Password:  a.cfg.PortalPassword,
				Browser:   strings.ToUpper(a.cfg.BrowserKind),
				Headless:  a.cfg.Headless,
			}, a.cfg.PortalStepTimeout())
			if err != nil {
				return &batchError{err}
			}
			defer func() {
				if err := driver.Close(); err != nil {
					a.log.Warn().Err(err).Msg("portal session close failed")
				}
			}()

			adapter := source.NewLiveAdapter(driver, a.cfg.PortalStepTimeout(), a.log)
			pipe := a.pipeline(driver)
			results, stats, err := pipe.ProcessFromLive(ctx, adapter, limit, portal.Group(strings.ToUpper(group)))
			if err != nil {
				return &batchError{err}
			}
			printSummary(results, stats)
			return exportIfRequested(output, results, stats)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write results to a JSON export file")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum prescriptions to extract (0 = all listed)")
	cmd.Flags().StringVar(&group, "group", "A", "Prescription list filter group (A, B or C)")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the decision review API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true
			e.Use(middleware.RequestID())
			e.Use(middleware.Logger(a.log))
			e.Use(middleware.Recovery(a.log))

			api := e.Group("/api/v1", middleware.APIKey(a.cfg.APIKey))
			h := review.NewHandler(a.archive, func() error {
				hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return db.Health(hctx, a.dbh)
			})
			h.RegisterRoutes(api)

			errCh := make(chan error, 1)
			go func() {
				errCh <- e.Start(":" + a.cfg.Port)
			}()
			a.log.Info().Str("port", a.cfg.Port).Msg("review server listening")

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return &batchError{err}
				}
			case <-ctx.Done():
				a.log.Info().Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := e.Shutdown(shutdownCtx); err != nil {
					return &batchError{err}
				}
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabasePath == "" {
				return fmt.Errorf("DATABASE_PATH is required")
			}
			dbh, err := db.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer dbh.Close()

			ctx := context.Background()
			fmt.Printf("Schema status for %s\n", cfg.DatabasePath)
			fmt.Printf("%-25s %s\n", "TABLE", "STATUS")
			for _, table := range db.Tables() {
				status := "missing"
				var name string
				err := dbh.QueryRowContext(ctx,
					`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`,
					table).Scan(&name)
				if err == nil {
					status = "present"
				} else if !errors.Is(err, sql.ErrNoRows) {
					return err
				}
				fmt.Printf("%-25s %s\n", table, status)
			}
			return nil
		},
	})
	return cmd
}
