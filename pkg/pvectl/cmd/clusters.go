package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"k8s.io/utils/ptr"

	"github.com/telekom/proxmox-multicluster/pkg/cluster"
	"github.com/telekom/proxmox-multicluster/pkg/pvectl/output"
)

func NewClustersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "clusters",
		Aliases: []string{"cluster"},
		Short:   "List, inspect and validate configured clusters",
	}

	cmd.AddCommand(
		newClustersListCommand(),
		newClustersInfoCommand(),
		newClustersValidateCommand(),
		newClustersSelectCommand(),
	)

	return cmd
}

func newClustersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured clusters in declaration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			reg, err := rt.Registry()
			if err != nil {
				return err
			}
			var rows []output.ClusterRow
			for _, name := range reg.ListClusters() {
				def, err := reg.Definition(name)
				if err != nil {
					return err
				}
				rows = append(rows, output.ClusterRow{
					Name:    name,
					APIURL:  def.APIURL,
					Default: name == reg.DefaultCluster(),
					Region:  def.Region,
					Tier:    def.Tier,
				})
			}
			return rt.write(rows, func(w io.Writer) { output.WriteClusterTable(w, rows) })
		},
	}
}

func newClustersInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info [name]",
		Short: "Show node, guest and storage counts for one or all clusters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			reg, err := rt.Registry()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				info, err := reg.ClusterInfo(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return rt.write(info, func(w io.Writer) { output.WriteClusterInfoTable(w, []cluster.ClusterInfo{info}) })
			}
			infos := reg.ListAllClustersInfo(cmd.Context())
			return rt.write(infos, func(w io.Writer) { output.WriteClusterInfoTable(w, infos) })
		},
	}
}

func newClustersValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Probe every configured cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			reg, err := rt.Registry()
			if err != nil {
				return err
			}
			results := reg.ValidateAllClusters(cmd.Context())
			if err := rt.write(results, func(w io.Writer) { output.WriteValidationTable(w, results) }); err != nil {
				return err
			}
			if !strict {
				return nil
			}
			failed := 0
			for _, r := range results {
				if !r.Healthy {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d clusters failed validation", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any cluster is unhealthy")

	return cmd
}

func newClustersSelectCommand() *cobra.Command {
	var (
		resource string
		explicit string
		vmid     int
	)

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Show which cluster an operation would be routed to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			reg, err := rt.Registry()
			if err != nil {
				return err
			}
			var hint *int
			if cmd.Flags().Changed("vmid") {
				hint = ptr.To(vmid)
			}
			sel, err := reg.Select(explicit, resource, hint)
			if err != nil {
				return err
			}
			return rt.write(sel, func(w io.Writer) { output.WriteSelectionTable(w, sel) })
		},
	}

	cmd.Flags().StringVar(&resource, "resource", "", "Resource name used for pattern and convention matching")
	cmd.Flags().StringVar(&explicit, "cluster", "", "Explicit cluster name")
	cmd.Flags().IntVar(&vmid, "vmid", 0, "VMID of the resource (accepted, not used for routing)")

	return cmd
}
