// Package workersdk is the CLI bootstrap a worker binary's main.go calls
// into: it wires config → credential client → exchange → processor around
// a caller-supplied workercontract.Worker and runs it to completion, with
// signal-driven graceful shutdown (grounded on citadel-cli's cmd/worker.go
// and cmd/root.go).
package workersdk

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"github.com/aceteam-ai/mediaworker-sdk/config"
	"github.com/aceteam-ai/mediaworker-sdk/credential"
	"github.com/aceteam-ai/mediaworker-sdk/exchange"
	"github.com/aceteam-ai/mediaworker-sdk/internal/redis"
	"github.com/aceteam-ai/mediaworker-sdk/internal/s3source"
	"github.com/aceteam-ai/mediaworker-sdk/internal/usage"
	"github.com/aceteam-ai/mediaworker-sdk/logger"
	"github.com/aceteam-ai/mediaworker-sdk/processor"
	"github.com/aceteam-ai/mediaworker-sdk/workercontract"
)

var (
	cfgFile string
	debug   bool
)

// NewCommand builds the single `run` cobra command a worker binary's
// main.go registers, bound to worker and (for media workers) demuxer.
// demuxer may be nil for a MonolithicWorker.
func NewCommand(worker workercontract.Worker, demuxer processor.DemuxerFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: fmt.Sprintf("Run %s as a mediaworker-sdk processor", worker.GetName()),
		Long:  worker.GetDescription(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), worker, demuxer)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "optional YAML configuration file overlay")
	cmd.Flags().BoolVar(&debug, "debug", false, "set the Debug configuration value (logging output is unchanged)")
	return cmd
}

// Execute runs the bootstrap as a standalone root command; convenience for
// a worker binary that has no other subcommands of its own.
func Execute(worker workercontract.Worker, demuxer processor.DemuxerFactory) {
	if err := NewCommand(worker, demuxer).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Run loads configuration, wires every ambient and domain component, and
// drives the processor event loop until ctx is cancelled or a SIGINT/
// SIGTERM is received.
func Run(ctx context.Context, worker workercontract.Worker, demuxer processor.DemuxerFactory) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Debug = true
	}

	log := logger.New(nil)
	log.Info("starting %s %s", worker.GetName(), worker.GetVersion())

	credClient, err := buildCredentialClient(ctx, cfg, log)
	if err != nil {
		return err
	}
	if credClient != nil {
		if aware, ok := worker.(workercontract.CredentialAware); ok {
			aware.SetCredentialResolver(credClient)
		}
	}

	usageStore, err := buildUsageStore(cfg, log)
	if err != nil {
		return err
	}
	if usageStore != nil {
		defer usageStore.Close()
	}

	ex, closeExchange, err := buildExchange(cfg)
	if err != nil {
		return err
	}
	defer closeExchange()

	opts := []processor.Option{
		processor.WithLogger(log),
		processor.WithSinkCapacity(cfg.SinkCapacity),
	}
	if demuxer != nil {
		opts = append(opts, processor.WithDemuxerFactory(demuxer))
	}
	if usageStore != nil {
		opts = append(opts, processor.WithUsageRecorder(usageStore))
	}
	if resolver, err := s3source.NewResolver(ctx); err != nil {
		log.Warning("s3 source resolution unavailable: %v", err)
	} else {
		opts = append(opts, processor.WithSourceResolver(resolver))
	}

	proc := processor.New(ex, worker, opts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case sig := <-sigs:
			log.Info("received signal %v, shutting down", sig)
			cancel()
		case <-runCtx.Done():
		}
	}()

	return proc.Run(runCtx)
}

// buildCredentialClient constructs the Credential Service Client, backed by
// the optional shared Redis cache when Redis.URL is configured. Returns a
// nil client (not an error) when Credential.BaseURL is unset, since not
// every worker resolves credential parameters.
func buildCredentialClient(ctx context.Context, cfg config.Config, log *logger.Logger) (*credential.Client, error) {
	if cfg.Credential.BaseURL == "" {
		return nil, nil
	}

	opts := []credential.Option{credential.WithCorrelationID(log.CorrelationID())}
	if cfg.Redis.URL != "" {
		cache, err := redis.NewClient(ctx, redis.ClientConfig{
			URL:       cfg.Redis.URL,
			Password:  cfg.Redis.Password,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			log.Warning("shared credential cache unavailable, resolving directly: %v", err)
		} else {
			opts = append(opts, credential.WithSharedCache(cache))
		}
	}

	return credential.NewClient(credential.Config{
		BaseURL:        cfg.Credential.BaseURL,
		User:           cfg.Credential.User,
		Password:       cfg.Credential.Password,
		Timeout:        cfg.Credential.Timeout,
		SharedCacheTTL: cfg.Credential.SharedCacheTTL,
	}, opts...)
}

// buildUsageStore opens the usage ledger's SQLite database. A failure here
// is logged and treated as "no ledger" rather than fatal: the ledger is an
// audit trail, not load-bearing for job processing.
func buildUsageStore(cfg config.Config, log *logger.Logger) (*usage.Store, error) {
	if cfg.UsageDBPath == "" {
		return nil, nil
	}
	store, err := usage.OpenStore(cfg.UsageDBPath)
	if err != nil {
		log.Warning("usage ledger unavailable: %v", err)
		return nil, nil
	}
	store.LogFn = func(level, message string) {
		if level == "error" {
			log.Error("%s", message)
		} else {
			log.Warning("%s", message)
		}
	}
	return store, nil
}

// buildExchange connects to the broker and returns a ready exchange.Exchange
// along with a function that tears down the underlying AMQP connection.
func buildExchange(cfg config.Config) (exchange.Exchange, func(), error) {
	conn, err := amqp.Dial(cfg.AMQP.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open AMQP channel: %w", err)
	}

	rabbitCfg := exchange.RabbitConfig{
		URL:             cfg.AMQP.URL,
		SourceQueue:     cfg.AMQP.SourceQueue,
		CompletedQueue:  cfg.AMQP.CompletedQueue,
		ErrorQueue:      cfg.AMQP.ErrorQueue,
		DeathCountLimit: cfg.AMQP.DeathCountLimit,
		PublishRetries:  cfg.AMQP.PublishRetries,
		PublishBackoff:  cfg.AMQP.PublishBackoff,
	}

	ex, err := exchange.NewRabbitExchange(ch, rabbitCfg)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("wire rabbit exchange: %w", err)
	}

	cleanup := func() {
		ex.Close()
		ch.Close()
		conn.Close()
	}
	return ex, cleanup, nil
}
