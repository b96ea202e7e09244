package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/proxmox-multicluster/pkg/cluster"
	"github.com/telekom/proxmox-multicluster/pkg/config"
	"github.com/telekom/proxmox-multicluster/pkg/pvectl/output"
	"github.com/telekom/proxmox-multicluster/pkg/router"
	"github.com/telekom/proxmox-multicluster/pkg/system"
)

type Config struct {
	OutputWriter io.Writer
	// Lookup resolves the PROXMOX_* variables; os.LookupEnv when nil
	Lookup config.LookupFunc
	// Factory builds cluster clients; cluster.RESTFactory when nil
	Factory cluster.Factory
}

type runtimeState struct {
	lookup       config.LookupFunc
	factory      cluster.Factory
	outputFormat string
	format       output.Format
	verbose      bool
	writer       io.Writer
	log          *zap.SugaredLogger

	cfg      *config.RegistryConfig
	registry *cluster.Registry
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		OutputWriter: os.Stdout,
		Lookup:       os.LookupEnv,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{lookup: cfg.Lookup, factory: cfg.Factory, writer: cfg.OutputWriter}

	root := &cobra.Command{
		Use:          "pvectl",
		Short:        "Inspect Proxmox VE clusters configured for the multi-cluster server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.lookup == nil {
				rt.lookup = os.LookupEnv
			}
			if rt.outputFormat == "" {
				rt.outputFormat, _ = rt.lookup("PVECTL_OUTPUT")
			}
			if !rt.verbose {
				v, _ := rt.lookup("PVECTL_VERBOSE")
				rt.verbose = strings.EqualFold(v, "true")
			}
			format, err := output.ParseFormat(rt.outputFormat)
			if err != nil {
				return err
			}
			rt.format = format

			rt.log = zap.NewNop().Sugar()
			if rt.verbose {
				logger, err := system.NewLogger(true)
				if err != nil {
					return err
				}
				rt.log = logger.Sugar()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: table, wide, json, yaml")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Log registry and backend activity to stderr")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewClustersCommand(),
		NewConfigCommand(),
		NewNodesCommand(),
		newGuestCommand(guestVM),
		newGuestCommand(guestLXC),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) Format() output.Format {
	if rt.format == "" {
		return output.FormatTable
	}
	return rt.format
}

// Config loads the registry configuration from the environment once.
func (rt *runtimeState) Config() (*config.RegistryConfig, error) {
	if rt.cfg != nil {
		return rt.cfg, nil
	}
	cfg, err := config.LoadFromLookup(rt.lookup)
	if err != nil {
		return nil, err
	}
	rt.cfg = cfg
	return cfg, nil
}

func (rt *runtimeState) Registry() (*cluster.Registry, error) {
	if rt.registry != nil {
		return rt.registry, nil
	}
	cfg, err := rt.Config()
	if err != nil {
		return nil, err
	}
	factory := rt.factory
	if factory == nil {
		factory = cluster.RESTFactory(rt.log)
	}
	reg, err := cluster.NewRegistry(cfg, cluster.WithFactory(factory), cluster.WithLogger(rt.log))
	if err != nil {
		return nil, err
	}
	rt.registry = reg
	return reg, nil
}

func (rt *runtimeState) Router() (*router.Router, error) {
	reg, err := rt.Registry()
	if err != nil {
		return nil, err
	}
	return router.New(reg, router.WithLogger(rt.log)), nil
}

// write renders obj in a structured format or hands it to table.
func (rt *runtimeState) write(obj any, table func(io.Writer)) error {
	if rt.Format().Structured() {
		return output.WriteObject(rt.Writer(), rt.Format(), obj)
	}
	table(rt.Writer())
	return nil
}
