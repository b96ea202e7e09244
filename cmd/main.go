package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/telekom/proxmox-multicluster/pkg/api"
	"github.com/telekom/proxmox-multicluster/pkg/audit"
	"github.com/telekom/proxmox-multicluster/pkg/cli"
	"github.com/telekom/proxmox-multicluster/pkg/cluster"
	"github.com/telekom/proxmox-multicluster/pkg/config"
	"github.com/telekom/proxmox-multicluster/pkg/router"
	"github.com/telekom/proxmox-multicluster/pkg/system"
	"github.com/telekom/proxmox-multicluster/pkg/version"
)

func main() {
	cliConfig := cli.Parse()

	zl, err := system.NewLogger(cliConfig.Debug)
	if err != nil {
		stdlog.Fatalf("failed to set up logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cliConfig, config.Load, cluster.RESTFactory(log), zl); err != nil {
		log.Errorw("Proxmox multi-cluster server failed", "error", err)
		os.Exit(1)
	}
}

// run wires the registry, router, audit pipeline and API server and serves
// until ctx is canceled.
func run(ctx context.Context, cliConfig *cli.Config, load func() (*config.RegistryConfig, error), factory cluster.Factory, zl *zap.Logger) error {
	log := zl.Sugar()
	log.With("version", version.GetBuildInfo().String()).Info("Starting proxmox multi-cluster server")
	cliConfig.Print(log)

	regConfig, err := load()
	if err != nil {
		return fmt.Errorf("load cluster configuration: %w", err)
	}
	registry, err := cluster.NewRegistry(regConfig, cluster.WithFactory(factory), cluster.WithLogger(log))
	if err != nil {
		return fmt.Errorf("create cluster registry: %w", err)
	}
	log.Infow("Cluster registry ready", "clusters", registry.ListClusters(), "default", registry.DefaultCluster(), "multiCluster", regConfig.MultiCluster)

	if cliConfig.ValidateOnStartup && regConfig.ValidationEnabled {
		healthy := 0
		results := registry.ValidateAllClusters(ctx)
		for _, r := range results {
			if r.Healthy {
				healthy++
			}
		}
		// unhealthy clusters are reported but do not prevent startup
		log.Infow("Startup cluster validation finished", "healthy", healthy, "total", len(results))
	}

	sinks := []audit.Sink{audit.NewLogSink(zl.Named("audit"))}
	kafkaConfig, kafkaEnabled, err := cliConfig.KafkaSinkConfig()
	if err != nil {
		return err
	}
	if kafkaEnabled {
		kafkaSink, err := audit.NewKafkaSink(kafkaConfig, zl.Named("audit"))
		if err != nil {
			return fmt.Errorf("create kafka audit sink: %w", err)
		}
		sinks = append(sinks, kafkaSink)
		log.Infow("Kafka audit sink enabled", "brokers", kafkaConfig.Brokers, "topic", kafkaConfig.Topic)
	}
	recorder := audit.NewRecorder(cliConfig.RecorderConfig(), zl.Named("audit"), sinks...)
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Warnw("Failed to close audit recorder", "error", err)
		}
	}()

	server := api.NewServer(zl, cliConfig.ServerConfig(log))
	defer server.Close()

	pveController := api.NewPVEController(router.New(registry, router.WithLogger(log)), recorder, cliConfig.MutationLimit(), log)
	defer pveController.Close()

	err = server.RegisterAll([]api.APIController{
		api.NewClusterController(registry, recorder, log),
		pveController,
	})
	if err != nil {
		return fmt.Errorf("register API controllers: %w", err)
	}

	return server.Listen(ctx)
}
