package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/telekom/proxmox-multicluster/pkg/pve"
	"github.com/telekom/proxmox-multicluster/pkg/pvectl/output"
)

func NewNodesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "nodes",
		Aliases: []string{"node"},
		Short:   "Inspect cluster nodes",
	}

	var clusterName string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the nodes of a cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			r, err := rt.Router()
			if err != nil {
				return err
			}
			nodes, err := r.ListNodes(cmd.Context(), clusterName)
			if err != nil {
				return err
			}
			return rt.write(nodes, func(w io.Writer) { output.WriteNodeTable(w, nodes) })
		},
	}
	list.Flags().StringVar(&clusterName, "cluster", "", "Cluster name; the default cluster when empty")

	cmd.AddCommand(list)
	return cmd
}

type guestKind struct {
	use     string
	aliases []string
	noun    string
	vm      bool
}

var (
	guestVM  = guestKind{use: "vms", aliases: []string{"vm"}, noun: "QEMU virtual machines", vm: true}
	guestLXC = guestKind{use: "lxc", aliases: []string{"containers", "ct"}, noun: "LXC containers"}
)

// newGuestCommand builds the vms or lxc command tree.
func newGuestCommand(kind guestKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:     kind.use,
		Aliases: kind.aliases,
		Short:   "Inspect " + kind.noun,
	}

	var (
		clusterName string
		opts        pve.ListOptions
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List " + kind.noun + " of a cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			r, err := rt.Router()
			if err != nil {
				return err
			}
			var resources []pve.Resource
			if kind.vm {
				resources, err = r.ListVMs(cmd.Context(), opts, clusterName)
			} else {
				resources, err = r.ListLXC(cmd.Context(), opts, clusterName)
			}
			if err != nil {
				return err
			}
			if rt.Format() == output.FormatWide {
				output.WriteResourceTableWide(rt.Writer(), resources)
				return nil
			}
			return rt.write(resources, func(w io.Writer) { output.WriteResourceTable(w, resources) })
		},
	}
	list.Flags().StringVar(&clusterName, "cluster", "", "Cluster name; the default cluster when empty")
	list.Flags().StringVar(&opts.Node, "node", "", "Only guests on this node")
	list.Flags().StringVar(&opts.Status, "status", "", "Only guests in this state, e.g. running")
	list.Flags().StringVar(&opts.Search, "search", "", "Case-insensitive substring of the name or vmid")

	cmd.AddCommand(list)
	return cmd
}
