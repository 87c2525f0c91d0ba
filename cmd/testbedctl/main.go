package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/meshbed/testbed-manager/internal/cli"
)

func main() {
	command := NewTestbedCtlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewTestbedCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testbedctl [flags] [options]",
		Short: "testbedctl controls tokens, resources and slices of the testbed.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdResources())
	cmd.AddCommand(cli.NewCmdTokens())
	cmd.AddCommand(cli.NewCmdSlices())
	cmd.AddCommand(cli.NewCmdVersion())

	return cmd
}
