package expert

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tensornet/gate/cmd/util"
	"github.com/tensornet/gate/rpc/client"
)

var (
	remoteExpert *client.RemoteExpert

	// ExpertCommands represents the expert command group
	ExpertCommands = &cobra.Command{
		Use:               "expert",
		Short:             "Call experts on a running gateway",
		PersistentPreRunE: setupExpertClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the expert command
	util.SetupRPCClientFlags(ExpertCommands)

	// The expert uid all subcommands target
	ExpertCommands.PersistentFlags().String("uid", "expert0", util.WrapString("Uid of the expert to call"))

	// Add subcommands
	ExpertCommands.AddCommand(infoCmd)
	ExpertCommands.AddCommand(forwardCmd)
	ExpertCommands.AddCommand(backwardCmd)
}

// setupExpertClient initializes the remote expert handle
func setupExpertClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the remote expert handle
	remoteExpert, err = client.NewRemoteExpert(
		viper.GetString("uid"),
		*config,
		t,
		s,
	)

	return err
}
