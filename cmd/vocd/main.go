package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vocbase/vocd/pkg/clusterstate"
	"github.com/vocbase/vocd/pkg/lifecycle"
	"github.com/vocbase/vocd/pkg/log"
	"github.com/vocbase/vocd/pkg/metrics"
	"github.com/vocbase/vocd/pkg/queryregistry"
	"github.com/vocbase/vocd/pkg/scriptdealer"
	"github.com/vocbase/vocd/pkg/storageengine"
	"github.com/vocbase/vocd/pkg/wal"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

var opts = loadInitialOptions()

// loadInitialOptions returns the default options layered with an optional
// on-disk config file, read before Cobra registers any flags so that an
// explicit flag still wins over both.
func loadInitialOptions() lifecycle.Options {
	o := lifecycle.DefaultOptions()

	path := os.Getenv("VOCD_CONFIG")
	if path == "" {
		path = "vocd.yaml"
	}
	if err := lifecycle.LoadConfigFile(path, &o); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load config file %s: %v\n", path, err)
	}
	return o
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "vocd",
	Short:   "vocd - a multi-tenant document database server",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("vocd version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&opts.DataDir, "database.directory", "./data", "database data directory")
	rootCmd.PersistentFlags().StringVar(&opts.AppPath, "javascript.app-path", "", "application directory for scripted collections (empty disables it)")
	rootCmd.PersistentFlags().Bool("cluster.coordinator", false, "run this node as a cluster coordinator")
	rootCmd.PersistentFlags().String("server.metrics-addr", "127.0.0.1:9090", "address to serve Prometheus metrics on (empty disables it)")

	lifecycle.CollectOptions(rootCmd, &opts)

	cobra.OnInitialize(initLogging)
	rootCmd.AddCommand(startCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the database server",
	RunE: func(cmd *cobra.Command, args []string) error {
		lifecycle.ApplyLegacyAliases(cmd, &opts)
		if err := lifecycle.ValidateOptions(&opts); err != nil {
			return fmt.Errorf("invalid options: %w", err)
		}

		isCoordinator, _ := cmd.Flags().GetBool("cluster.coordinator")
		metricsAddr, _ := cmd.Flags().GetString("server.metrics-addr")

		logger := log.WithComponent("vocd")

		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", opts.DataDir, err)
		}

		engine, err := storageengine.NewBoltEngine(opts.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open storage engine: %w", err)
		}

		fileWAL, err := wal.NewFileWAL(filepath.Join(opts.DataDir, "wal.db"))
		if err != nil {
			return fmt.Errorf("failed to open wal: %w", err)
		}
		defer fileWAL.Close()

		clusterState := clusterstate.NewSingleNode()
		if isCoordinator {
			clusterState = clusterstate.NewCoordinator()
		}

		controller := lifecycle.NewController(opts, lifecycle.Dependencies{
			Engine:        engine,
			WAL:           fileWAL,
			Dealer:        scriptdealer.NewStaticDealer(opts.AppPath),
			QueryRegistry: queryregistry.New(),
			ClusterState:  clusterState,
		})
		controller.Prepare()

		ctx := context.Background()
		if err := controller.Start(ctx); err != nil {
			if errors.Is(err, lifecycle.ErrCheckVersionExit) {
				fmt.Println("database.check-version: data directory is empty, nothing to upgrade")
				return nil
			}
			return fmt.Errorf("failed to start database server: %w", err)
		}
		logger.Info().Msg("vocd started")

		var metricsServer *http.Server
		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			metricsServer = &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error().Err(err).Msg("metrics server error")
				}
			}()
			logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info().Msg("shutting down")

		if metricsServer != nil {
			_ = metricsServer.Close()
		}

		controller.ShutdownCompactor()
		if err := controller.Unprepare(ctx); err != nil {
			return fmt.Errorf("failed to shut down cleanly: %w", err)
		}

		logger.Info().Msg("shutdown complete")
		return nil
	},
}
