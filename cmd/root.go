package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tensornet/gate/cmd/expert"
	"github.com/tensornet/gate/cmd/serve"
	"github.com/tensornet/gate/cmd/util"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "gate",
		Short: "remote compute gateway",
		Long: fmt.Sprintf(`gate (v%s)

A gateway that serves named compute experts over the network,
batching incoming tensor workloads and streaming large results
back in chunks.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of gate",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gate v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(expert.ExpertCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp, unix) - streamed procedures require tcp or unix"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
