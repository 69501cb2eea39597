package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nwws-bridge/nwws-bridge/db"
	"github.com/nwws-bridge/nwws-bridge/internal/config"
	"github.com/nwws-bridge/nwws-bridge/internal/event"
	"github.com/nwws-bridge/nwws-bridge/internal/httpserver"
	"github.com/nwws-bridge/nwws-bridge/internal/metrics"
	"github.com/nwws-bridge/nwws-bridge/internal/pipeline"
	"github.com/nwws-bridge/nwws-bridge/internal/pipeline/errhandler"
	"github.com/nwws-bridge/nwws-bridge/internal/pipeline/filter"
	"github.com/nwws-bridge/nwws-bridge/internal/pipeline/output"
	"github.com/nwws-bridge/nwws-bridge/internal/pipeline/transform"
	"github.com/nwws-bridge/nwws-bridge/internal/receiver"
	"github.com/nwws-bridge/nwws-bridge/internal/textproduct"
	"github.com/nwws-bridge/nwws-bridge/internal/ugc"
	"github.com/nwws-bridge/nwws-bridge/logger"
	"github.com/nwws-bridge/nwws-bridge/version"
)

var (
	verbosity   int
	showVersion bool
)

var rootCmd = &cobra.Command{
	Use:   "nwwsbridge",
	Short: "NWWS-OI XMPP ingest bridge",
	Long: `nwwsbridge connects to the NWWS-OI XMPP feed, parses incoming
weather products, and fans them out to configured outputs (console,
MQTT, database) while exposing Prometheus metrics and health checks.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Println(version.Get().String())
			return nil
		}
		return run()
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase output verbosity (-v, -vv)")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	jsonOutput := cfg.Logging.Level != "" && strings.EqualFold(cfg.Logging.Level, "json")
	if err := logger.Initialize(jsonOutput, verbosity); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Cleanup()

	logger.Infow("starting nwwsbridge", "version", version.Get().Version)

	var ugcTable *ugc.Table
	var ugcWatcher *ugc.Watcher
	if cfg.UGCPath != "" {
		ugcWatcher, err = ugc.NewWatcher(cfg.UGCPath)
		if err != nil {
			return fmt.Errorf("failed to load UGC table: %w", err)
		}
		ugcTable = ugcWatcher.Table()
		ugcWatcher.Start()
	}

	registry := metrics.NewRegistry()
	collector := metrics.NewCollector(registry, "nwwsbridge")

	parser := textproduct.NewDefault(ugcTable)
	chain := transform.NewChainTransformer("chain",
		transform.NewNOAAPortTransformer("noaaport", parser),
		transform.NewXMLTransformer("xml"),
	)

	filters := []filter.Filter{
		filter.NewTestMessageFilter("test_message"),
		filter.NewDuplicateFilter("duplicate", 300*time.Second),
	}

	outputs, err := buildOutputs(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure outputs: %w", err)
	}

	defaultHandler := func(stage string) *errhandler.Handler {
		switch stage {
		case "output":
			return errhandler.New(errhandler.CircuitBreaker,
				errhandler.RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, Multiplier: 2},
				errhandler.CircuitPolicy{FailureThreshold: 5, OpenTimeout: 60 * time.Second})
		case "filter":
			return errhandler.New(errhandler.Continue, errhandler.RetryPolicy{}, errhandler.CircuitPolicy{})
		default:
			return errhandler.New(errhandler.FailFast, errhandler.RetryPolicy{}, errhandler.CircuitPolicy{})
		}
	}

	pl := pipeline.New(filters, chain, outputs, collector, defaultHandler)
	if err := pl.Start(); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	eventCh := make(chan event.Event, 256)
	recv := receiver.New(receiver.Config{
		Username: cfg.NWWS.Username,
		Password: cfg.NWWS.Password,
		Server:   cfg.NWWS.Server,
		Port:     cfg.NWWS.Port,
	}, eventCh, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := recv.Start(ctx); err != nil {
			logger.Errorw("receiver stopped with error", "error", err)
		}
	}()
	go consumeEvents(eventCh, pl)

	var httpSrv *httpserver.Server
	if cfg.Metrics.ServerEnabled {
		httpSrv = httpserver.New(fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port), registry)
		httpSrv.Start()
		httpSrv.SetReady(true)
	}

	logger.Infow("nwwsbridge running", "outputs", cfg.Outputs.Enabled)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infow("shutdown signal received, stopping")
	shutdownTimeout := cfg.ShutdownTimeout()

	if httpSrv != nil {
		if err := httpSrv.Stop(shutdownTimeout); err != nil {
			logger.Warnw("http server shutdown error", "error", err)
		}
	}
	recv.Stop()
	pl.Stop()
	if ugcWatcher != nil {
		if err := ugcWatcher.Stop(); err != nil {
			logger.Warnw("ugc watcher stop error", "error", err)
		}
	}

	logger.Infow("shutdown complete")
	return nil
}

// consumeEvents drains the receiver's event channel and runs each
// event through the pipeline until the channel is closed.
func consumeEvents(events <-chan event.Event, pl *pipeline.Pipeline) {
	for e := range events {
		if _, err := pl.Process(e); err != nil {
			logger.Warnw("pipeline processing failed", "event_id", e.Meta().EventID, "error", err)
		}
	}
}

func buildOutputs(cfg *config.Config) (*output.Registry, error) {
	registry := output.NewRegistry()
	for _, name := range cfg.Outputs.Enabled {
		switch name {
		case "console":
			registry.Add(output.NewConsoleOutput("console"))
		case "mqtt":
			registry.Add(output.NewMQTTOutput("mqtt", output.MQTTConfig{
				Broker:      cfg.MQTT.Broker,
				Port:        cfg.MQTT.Port,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				QoS:         byte(cfg.MQTT.QoS),
				ClientID:    cfg.MQTT.ClientID,
			}))
		case "database":
			registry.Add(output.NewDatabaseOutput("database", db.Driver(cfg.Database.Driver), cfg.Database.DSN))
		default:
			return nil, fmt.Errorf("unknown output: %s", name)
		}
	}
	return registry, nil
}
