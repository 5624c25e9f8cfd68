package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessera-id/portal/config"
	"github.com/tessera-id/portal/domain"
	"github.com/tessera-id/portal/eventstore"
	"github.com/tessera-id/portal/eventstore/memory"
	"github.com/tessera-id/portal/eventstore/msgpack"
	"github.com/tessera-id/portal/eventstore/postgres"
	"github.com/tessera-id/portal/readmodel"
)

// Version information, set at build time.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func newRootCommand() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:           "portal",
		Short:         "Multi-tenant identity and configuration portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory holding portal.yaml")

	root.AddCommand(newMigrateCommand(&configDir))
	root.AddCommand(newVerifyReplayCommand(&configDir))
	root.AddCommand(newVersionCommand())

	return root
}

func newMigrateCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the event store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			if cfg.Database.Driver == "memory" {
				fmt.Fprintln(cmd.OutOrStdout(), "memory driver needs no schema")
				return nil
			}

			store, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := store.Initialize(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newVerifyReplayCommand(configDir *string) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "verify-replay",
		Short: "Verify the event log replays cleanly through the projections",
		Long: `Replays every stored event through the projection handlers in global
order into a fresh, throwaway read model. The serving process holds its views
in memory and rebuilds them at startup, so this command cannot repair a live
read model; it dry-runs that rebuild and reports the first event a projection
handler rejects. Use after changing projection logic before restarting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			store, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			store.RegisterEvents(domain.AllEvents()...)

			rebuilder := readmodel.NewRebuilder(store, readmodel.NewMemoryStores(),
				readmodel.WithRebuilderBatchSize(batchSize),
				readmodel.WithRebuilderLogger(logger),
			)
			result, err := rebuilder.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d events in %s\n",
				result.EventsProcessed, result.Duration)
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 1000, "Events loaded per batch")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "portal %s (commit %s, built %s)\n",
				version, commit, buildDate)
		},
	}
}

func openStore(cfg *config.Config) (*eventstore.Store, func(), error) {
	opts := []eventstore.Option{eventstore.WithLogger(newLogger(cfg))}
	if cfg.Serializer == "msgpack" {
		opts = append(opts, eventstore.WithSerializer(msgpack.NewSerializer()))
	}

	switch cfg.Database.Driver {
	case "postgres":
		adapter, err := postgres.NewAdapter(os.ExpandEnv(cfg.Database.URL),
			postgres.WithSchema(cfg.Database.Schema))
		if err != nil {
			return nil, nil, err
		}
		store := eventstore.New(adapter, opts...)
		return store, func() { adapter.Close() }, nil
	default:
		store := eventstore.New(memory.NewAdapter(), opts...)
		return store, func() {}, nil
	}
}

func newLogger(cfg *config.Config) eventstore.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return eventstore.NewSlogLogger(slog.New(handler))
}
