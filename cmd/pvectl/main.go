package main

import (
	"os"

	pvectlcmd "github.com/telekom/proxmox-multicluster/pkg/pvectl/cmd"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := pvectlcmd.NewRootCommand(pvectlcmd.DefaultConfig())
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
