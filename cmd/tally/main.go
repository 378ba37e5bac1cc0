// Package main provides the tally CLI: batched ingestion into DuckDB and
// execution-plan comparison across index configurations.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/tally/cmd/tally/config"
	"github.com/TFMV/tally/pkg/batch"
	"github.com/TFMV/tally/pkg/infrastructure/metrics"
	"github.com/TFMV/tally/pkg/models"
	"github.com/TFMV/tally/pkg/plan"
	"github.com/TFMV/tally/pkg/store"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Batched ingestion and plan inspection for DuckDB",
	Long: `tally feeds records into DuckDB in fixed-size batches and compares
query execution plans across index configurations.`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Batch-insert fixture records into the task table",
	Long: `Generate reproducible fixture records with a skewed category
distribution and flush them through the batch writer.

Example:
  tally ingest --database ./tally.db --records 100000 --batch-size 100`,
	RunE: runIngest,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compare execution plans before and after indexing the category column",
	Long: `Capture the execution plan for a common and a rare category value
under three index configurations: none, a full index, and a partial index
excluding the dominant value. Each capture pins the statement to server-side
preparation first. An empty database is ingested before comparing.

Example:
  tally plan --database ./tally.db`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(planCmd)

	for _, cmd := range []*cobra.Command{ingestCmd, planCmd} {
		cmd.Flags().StringP("config", "c", "", "config file path")
		cmd.Flags().String("database", ":memory:", "DuckDB database path")
		cmd.Flags().String("table", "task", "record table name")
		cmd.Flags().String("enum-type", "task_status", "enum type backing the category column")
		cmd.Flags().Int("batch-size", 100, "batch writer flush threshold")
		cmd.Flags().Int("records", 100000, "number of fixture records")
		cmd.Flags().Int64("seed", 1, "fixture PRNG seed")
		cmd.Flags().String("identity", "client", "identity strategy (client, store, none)")
		cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
		cmd.Flags().Bool("metrics", false, "enable Prometheus metrics")
		cmd.Flags().String("metrics-address", ":9090", "metrics server address")
	}

	viper.SetEnvPrefix("TALLY")
	viper.AutomaticEnv()

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tally\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// session bundles what both commands need against one open database.
type session struct {
	cfg           *config.Config
	logger        zerolog.Logger
	db            *sql.DB
	channel       store.Channel
	collector     metrics.Collector
	metricsServer *metrics.MetricsServer
}

func newSession(cmd *cobra.Command) (*session, error) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := config.LoadFromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()

	db, err := store.OpenDuckDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		channel:   store.NewDuckDBChannel(db, logger),
		collector: metrics.NewNoOpCollector(),
	}

	if cfg.Metrics.Enabled {
		s.collector = metrics.NewPrometheusCollector()
		s.metricsServer = metrics.NewMetricsServer(cfg.Metrics.Address)
		go func() {
			if err := s.metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		logger.Info().Str("address", cfg.Metrics.Address).Msg("Metrics server started")
	}

	return s, nil
}

// close releases the session's resources on every exit path.
func (s *session) close() {
	if s.metricsServer != nil {
		if err := s.metricsServer.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop metrics server")
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to close database")
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := context.Background()
	if err := setupSchema(ctx, s); err != nil {
		return err
	}
	return ingestRecords(ctx, s)
}

// setupSchema recreates the enum type and the record table.
func setupSchema(ctx context.Context, s *session) error {
	cfg := s.cfg
	strategy := cfg.IdentityStrategy()

	labels := make([]string, 0, len(models.Categories()))
	for _, c := range models.Categories() {
		labels = append(labels, c.String())
	}

	statements := []string{
		store.DropTableSQL(cfg.Table),
		store.DropTypeSQL(cfg.EnumType),
		store.CreateEnumTypeSQL(cfg.EnumType, labels),
	}
	if strategy == store.IdentityStoreAssigned {
		statements = append(statements, store.CreateSequenceSQL(store.SequenceName(cfg.Table)))
	}
	statements = append(statements, store.CreateTableSQL(cfg.Table, cfg.EnumType, strategy))

	for _, stmt := range statements {
		if _, err := s.channel.ExecuteWrite(ctx, stmt); err != nil {
			return err
		}
	}

	s.logger.Info().
		Str("table", cfg.Table).
		Str("identity", strategy.String()).
		Msg("Schema ready")
	return nil
}

// ingestRecords streams fixture records through the batch writer.
func ingestRecords(ctx context.Context, s *session) error {
	cfg := s.cfg

	writer, err := batch.NewWriter(s.channel, cfg.Table, batch.Options{
		BatchSize: cfg.BatchSize,
		Identity:  cfg.IdentityStrategy(),
		Logger:    s.logger,
		Metrics:   s.collector,
	})
	if err != nil {
		return err
	}

	builder := models.NewFixtureBuilder(rand.New(rand.NewSource(cfg.Seed)))

	start := time.Now()
	for i := 1; i <= cfg.RecordCount; i++ {
		if err := writer.Add(ctx, builder.Record(i, cfg.RecordCount)); err != nil {
			return err
		}
	}
	if err := writer.Finish(ctx); err != nil {
		return err
	}

	s.logger.Info().
		Int64("records", writer.Total()).
		Int64("flushes", writer.Flushes()).
		Dur("elapsed", time.Since(start)).
		Msg("Ingest complete")
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := context.Background()
	if err := ensureData(ctx, s); err != nil {
		return err
	}

	inspector, err := plan.NewInspector(s.channel, plan.Options{
		Logger:  s.logger,
		Metrics: s.collector,
	})
	if err != nil {
		return err
	}

	cfg := s.cfg
	query := fmt.Sprintf("SELECT * FROM %s WHERE status = ?", cfg.Table)
	indexName := "idx_" + cfg.Table + "_status"
	common := models.CategoryDone
	rare := models.CategoryToDo
	marshaler := store.NewEnumMarshaler()

	capture := func(stage string, category models.Category) (models.ExecutionPlan, error) {
		param, err := marshaler.Marshal(category)
		if err != nil {
			return nil, err
		}
		p, err := inspector.CapturePlan(ctx, query, param)
		if err != nil {
			return nil, err
		}
		s.logger.Info().
			Str("stage", stage).
			Str("category", category.String()).
			Msg("Execution plan:\n" + p.String())
		return p, nil
	}

	reindex := func(statements ...string) error {
		for _, stmt := range statements {
			if _, err := s.channel.ExecuteWrite(ctx, stmt); err != nil {
				return err
			}
		}
		// refresh table statistics so the optimizer sees the new index
		_, err := s.channel.ExecuteWrite(ctx, "ANALYZE")
		return err
	}

	if _, err := capture("no index", common); err != nil {
		return err
	}
	preIndexRare, err := capture("no index", rare)
	if err != nil {
		return err
	}

	if err := reindex(store.CreateIndexSQL(indexName, cfg.Table, "status")); err != nil {
		return err
	}
	if _, err := capture("full index", common); err != nil {
		return err
	}
	postIndexRare, err := capture("full index", rare)
	if err != nil {
		return err
	}

	s.logger.Info().
		Bool("plans_differ", !preIndexRare.Equal(postIndexRare)).
		Bool("full_scan_before", preIndexRare.UsesFullScan()).
		Bool("full_scan_after", postIndexRare.UsesFullScan()).
		Str("category", rare.String()).
		Msg("Index comparison")

	predicate := fmt.Sprintf("status <> '%s'", common)
	if err := reindex(
		store.DropIndexSQL(indexName),
		store.CreatePartialIndexSQL(indexName, cfg.Table, "status", predicate),
	); err != nil {
		return err
	}
	if _, err := capture("partial index", common); err != nil {
		return err
	}
	if _, err := capture("partial index", rare); err != nil {
		return err
	}

	return nil
}

// ensureData ingests fixture records when the table is missing or empty, so
// plan comparison always runs against populated data.
func ensureData(ctx context.Context, s *session) error {
	rows, err := s.channel.ExecuteQuery(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.cfg.Table))
	if err == nil {
		defer rows.Close()
		var count int64
		if rows.Next() {
			if scanErr := rows.Scan(&count); scanErr == nil && count > 0 {
				return nil
			}
		}
	}

	s.logger.Info().Msg("Table missing or empty, ingesting fixture records")
	if err := setupSchema(ctx, s); err != nil {
		return err
	}
	return ingestRecords(ctx, s)
}
