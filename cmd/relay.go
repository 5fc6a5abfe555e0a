package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zeidlos/gridcall/internal/config"
	"github.com/zeidlos/gridcall/internal/relay"
)

var flagRelayListen string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay server",
	Long: `Run the signaling relay that pairs players, referees the game, and
forwards WebRTC negotiation between the two peers of a room. The relay never
carries media and holds no credentials; it can run on any untrusted box.

Examples:
  gridcall relay
  gridcall relay --listen :9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{ListenAddr: flagRelayListen})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return relay.ListenAndServe(ctx, cfg.ListenAddr, relay.NewHub())
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVarP(&flagRelayListen, "listen", "l", "", "Bind address for the relay")
}
