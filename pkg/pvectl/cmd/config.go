package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/telekom/proxmox-multicluster/pkg/config"
	"github.com/telekom/proxmox-multicluster/pkg/pvectl/output"
)

const redacted = "<redacted>"

type clusterView struct {
	config.ClusterDefinition
	TokenSecret string `json:"tokenSecret,omitempty"`
}

type configView struct {
	Clusters          []clusterView        `json:"clusters"`
	DefaultCluster    string               `json:"defaultCluster"`
	CacheTTL          string               `json:"cacheTTL"`
	ValidationEnabled bool                 `json:"validationEnabled"`
	MultiCluster      bool                 `json:"multiCluster"`
	Patterns          []config.PatternRule `json:"patterns,omitempty"`
}

func newConfigView(cfg *config.RegistryConfig) configView {
	view := configView{
		DefaultCluster:    cfg.DefaultCluster,
		CacheTTL:          cfg.CacheTTL.String(),
		ValidationEnabled: cfg.ValidationEnabled,
		MultiCluster:      cfg.MultiCluster,
		Patterns:          cfg.Patterns,
	}
	for _, name := range cfg.Names() {
		def, _ := cfg.Lookup(name)
		v := clusterView{ClusterDefinition: def}
		if def.TokenSecret != "" {
			v.TokenSecret = redacted
		}
		view.Clusters = append(view.Clusters, v)
	}
	return view
}

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the cluster configuration read from the environment",
	}

	cmd.AddCommand(newConfigViewCommand())

	return cmd
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Print the effective registry configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			cfg, err := rt.Config()
			if err != nil {
				return err
			}
			view := newConfigView(cfg)
			if rt.Format() == output.FormatJSON {
				return output.WriteObject(rt.Writer(), output.FormatJSON, view)
			}
			// sigs.k8s.io/yaml keeps the json field names and the embedded definition inline
			data, err := yaml.Marshal(view)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = rt.Writer().Write(data)
			return err
		},
	}
}
