package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/zeidlos/gridcall/internal/ui"
	"github.com/zeidlos/gridcall/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "gridcall",
	Short:   "Play tic-tac-toe over a peer-to-peer video call",
	Long:    `GridCall is a command-line tool that pairs a two-player tic-tac-toe room with a direct WebRTC audio/video call. Game moves travel through a lightweight signaling relay that also brokers the call; the media itself flows peer to peer and never touches the relay.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
