package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/meds/historian/internal/config"
	"github.com/meds/historian/internal/history"
	"github.com/meds/historian/internal/output"
	"github.com/meds/historian/internal/platform/middleware"
	"github.com/meds/historian/internal/platform/telemetry"
	"github.com/meds/historian/internal/server"
	"github.com/meds/historian/internal/source"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "historian",
		Short: "Episode code-history extraction",
	}

	rootCmd.AddCommand(dxCmd())
	rootCmd.AddCommand(procCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func dxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dx",
		Short: "Extract diagnosis codes within each episode's lookback window",
		RunE: func(cmd *cobra.Command, args []string) error {
			episodeFile, _ := cmd.Flags().GetString("episode-file")
			inpFile, _ := cmd.Flags().GetString("inpatient-file")
			edFile, _ := cmd.Flags().GetString("ed-file")
			days, _ := cmd.Flags().GetInt("days")
			feature, _ := cmd.Flags().GetString("feature")
			backendName, _ := cmd.Flags().GetString("backend")
			outPath, _ := cmd.Flags().GetString("output")

			logger := newLogger()

			mode, err := history.ParseFeatureMode(feature)
			if err != nil {
				return err
			}
			backend, err := history.ParseBackend(backendName)
			if err != nil {
				return err
			}

			episodes, err := source.ReadCSVFile(episodeFile, nil)
			if err != nil {
				return err
			}
			inpatient, err := source.ReadCSVFile(inpFile, nil)
			if err != nil {
				return err
			}
			var ed *source.Table
			if mode != history.ModeInpOnly {
				if edFile == "" {
					return fmt.Errorf("--ed-file is required for feature mode %q", mode)
				}
				ed, err = source.ReadCSVFile(edFile, nil)
				if err != nil {
					return err
				}
			}

			results, _, err := history.RunDx(logger, episodes, inpatient, ed, history.Options{
				LookbackDays: days,
				Mode:         mode,
				Backend:      backend,
			})
			if err != nil {
				return err
			}

			if err := output.WriteNDJSONFile(outPath, results); err != nil {
				return err
			}
			logger.Info().Str("output", outPath).Int("rows", len(results)).Msg("results written")
			return nil
		},
	}

	cmd.Flags().String("episode-file", "", "Path to the episode CSV file")
	cmd.Flags().String("inpatient-file", "", "Path to the inpatient (DAD) CSV file")
	cmd.Flags().String("ed-file", "", "Path to the ED CSV file")
	cmd.Flags().Int("days", 1825, "Lookback window length in days")
	cmd.Flags().String("feature", "inp ignore ed", `Feature mode: "inp only", "both", or "inp ignore ed"`)
	cmd.Flags().String("backend", "binary-search", `Matcher backend: "binary-search" or "linear-scan"`)
	cmd.Flags().String("output", "", "Output path for NDJSON results")
	cmd.MarkFlagRequired("episode-file")
	cmd.MarkFlagRequired("inpatient-file")
	cmd.MarkFlagRequired("output")
	return cmd
}

func procCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proc",
		Short: "Extract procedure codes within each episode's lookback window",
		RunE: func(cmd *cobra.Command, args []string) error {
			episodeFile, _ := cmd.Flags().GetString("episode-file")
			inpFile, _ := cmd.Flags().GetString("inpatient-file")
			days, _ := cmd.Flags().GetInt("days")
			backendName, _ := cmd.Flags().GetString("backend")
			outPath, _ := cmd.Flags().GetString("output")

			logger := newLogger()

			backend, err := history.ParseBackend(backendName)
			if err != nil {
				return err
			}

			episodes, err := source.ReadCSVFile(episodeFile, nil)
			if err != nil {
				return err
			}
			inpatient, err := source.ReadCSVFile(inpFile, nil)
			if err != nil {
				return err
			}

			results, _, err := history.RunProc(logger, episodes, inpatient, history.Options{
				LookbackDays: days,
				Backend:      backend,
			})
			if err != nil {
				return err
			}

			if err := output.WriteNDJSONFile(outPath, results); err != nil {
				return err
			}
			logger.Info().Str("output", outPath).Int("rows", len(results)).Msg("results written")
			return nil
		},
	}

	cmd.Flags().String("episode-file", "", "Path to the episode CSV file")
	cmd.Flags().String("inpatient-file", "", "Path to the inpatient (DAD) CSV file")
	cmd.Flags().Int("days", 1825, "Lookback window length in days")
	cmd.Flags().String("backend", "binary-search", `Matcher backend: "binary-search" or "linear-scan"`)
	cmd.Flags().String("output", "", "Output path for NDJSON results")
	cmd.MarkFlagRequired("episode-file")
	cmd.MarkFlagRequired("inpatient-file")
	cmd.MarkFlagRequired("output")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve history queries over a pre-built index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	mode, err := history.ParseFeatureMode(cfg.FeatureMode)
	if err != nil {
		return err
	}
	backend, err := history.ParseBackend(cfg.Backend)
	if err != nil {
		return err
	}
	opts := history.Options{
		LookbackDays: cfg.LookbackDays,
		Mode:         mode,
		Backend:      backend,
	}

	ctx := context.Background()
	episodeTable, inpTable, edTable, err := loadTables(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load sources")
	}

	episodes, err := history.PrepareEpisodes(episodeTable, history.DefaultEpisodeSpec(), logger)
	if err != nil {
		return err
	}
	inpatient, inpDropped, err := history.Preprocess(inpTable, history.DefaultInpatientDxSpec(), logger)
	if err != nil {
		return err
	}
	var ed []history.Record
	edDropped := 0
	if edTable != nil {
		ed, edDropped, err = history.Preprocess(edTable, history.DefaultEDDxSpec(), logger)
		if err != nil {
			return err
		}
	}

	metrics := telemetry.NewProvider()

	// One extraction pass at startup publishes corpus-level gauges
	// (episodes with history, code totals, dropped rows) on /metrics.
	x, err := history.NewDxExtractor(logger, opts)
	if err != nil {
		return err
	}
	_, stats := x.Extract(episodes, inpatient, ed)
	stats.DroppedRows[inpTable.Name()] = inpDropped
	if edTable != nil {
		stats.DroppedRows[edTable.Name()] = edDropped
	}
	metrics.RecordRun("dx", stats.Episodes, stats.EpisodesWithCodes, stats.TotalCodes, stats.Patients, stats.DroppedRows)

	h := server.NewHandler(logger, metrics, episodes, inpatient, ed, opts)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(25 * time.Second))
	e.Use(metrics.Middleware())

	h.RegisterRoutes(e)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      e,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("history query service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadTables reads the three source tables from Postgres when
// DATABASE_URL is configured, otherwise from CSV files. The ED table is
// optional either way.
func loadTables(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (episodes, inpatient, ed *source.Table, err error) {
	if cfg.UsesDatabase() {
		pool, err := source.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, nil, err
		}
		defer pool.Close()
		logger.Info().Msg("loading sources from database")

		episodes, err = source.QueryTable(ctx, pool, "episodes", cfg.EpisodeQuery)
		if err != nil {
			return nil, nil, nil, err
		}
		inpatient, err = source.QueryTable(ctx, pool, "inpatient", cfg.InpatientQuery)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.EDQuery != "" {
			ed, err = source.QueryTable(ctx, pool, "ed", cfg.EDQuery)
			if err != nil {
				return nil, nil, nil, err
			}
		}
		return episodes, inpatient, ed, nil
	}

	logger.Info().Msg("loading sources from CSV files")
	episodes, err = source.ReadCSVFile(cfg.EpisodeFile, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	inpatient, err = source.ReadCSVFile(cfg.InpatientFile, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.EDFile != "" {
		ed, err = source.ReadCSVFile(cfg.EDFile, nil)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return episodes, inpatient, ed, nil
}
