package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	rollcmd "github.com/movementlabsxyz/da-sequencer/pkg/cmd"
	"github.com/movementlabsxyz/da-sequencer/pkg/config"
)

// AppName is the name of the application, the name of the command, and the name of the home directory.
const AppName = "da-sequencer"

// RootCmd is the root command of the DA-sequencer node.
var RootCmd = &cobra.Command{
	Use:   AppName,
	Short: "Movement DA-sequencer: orders signed transaction batches into blocks and publishes them to Celestia.",
	Long: `
The DA-sequencer accepts signed transaction batches over gRPC, orders them into
a single chain of blocks, publishes block digests to Celestia and streams the
blocks to every follower node.
If the --home flag is not specified, the command will create a folder "~/.da-sequencer" where it will store keys, config, and data.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	config.AddGlobalFlags(RootCmd, AppName)
}

func main() {
	// Add subcommands to the root command
	RootCmd.AddCommand(
		rollcmd.StartCmd(),
		rollcmd.InitCmd(),
		rollcmd.KeysCmd(),
		rollcmd.WhitelistCmd(),
		rollcmd.DACmd(),
		rollcmd.StoreCmd(),
		rollcmd.VersionCmd,
	)

	if err := RootCmd.Execute(); err != nil {
		// Print to stderr and exit with error
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
