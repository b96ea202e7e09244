package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telekom/proxmox-multicluster/pkg/pvectl/output"
	"github.com/telekom/proxmox-multicluster/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show pvectl version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetBuildInfo()

			// Get runtime if available (for custom writer), but don't fail if missing
			rt, _ := getRuntime(cmd)
			writer := cmd.OutOrStdout()
			format := output.FormatTable
			if rt != nil {
				writer = rt.Writer()
				format = rt.Format()
			}

			if format.Structured() {
				return output.WriteObject(writer, format, info)
			}
			_, _ = fmt.Fprintf(writer, "pvectl %s (commit: %s, built: %s)\n", info.Version, info.GitCommit, info.BuildDate)
			return nil
		},
	}
}
