package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zeidlos/gridcall/internal/config"
	"github.com/zeidlos/gridcall/internal/game"
	"github.com/zeidlos/gridcall/internal/media"
	"github.com/zeidlos/gridcall/internal/rtc"
	"github.com/zeidlos/gridcall/internal/session"
	"github.com/zeidlos/gridcall/internal/signaling"
	"github.com/zeidlos/gridcall/internal/ui"
)

var (
	flagJoinRelayURL string
	flagJoinSTUN     string
	flagJoinTURN     string
	flagJoinTURNUser string
	flagJoinTURNPass string
	flagJoinRelay    bool
)

const joinTimeout = 15 * time.Second

var joinCmd = &cobra.Command{
	Use:     "join [room-code]",
	Aliases: []string{"j"},
	Short:   "Join a game room and start the call",
	Long: `Join a two-player room by code, or create a fresh room when no code is
given. Once both players are in, the game board appears and the video call
connects directly between the two peers.

Examples:
  gridcall join             (create a room and share the printed code)
  gridcall join ABC123
  gridcall join ABC123 --force-relay`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		created := len(args) == 0
		roomCode := ""
		if !created {
			roomCode = args[0]
		} else {
			roomCode = game.NewRoomCode()
		}
		return joinRoom(roomCode, created)
	},
}

func joinRoom(roomCode string, created bool) error {
	cfg, err := config.Load(config.Options{
		RelayURL:   flagJoinRelayURL,
		STUNServer: flagJoinSTUN,
		TURNServer: flagJoinTURN,
		TURNUser:   flagJoinTURNUser,
		TURNPass:   flagJoinTURNPass,
		ForceRelay: flagJoinRelay,
	})
	if err != nil {
		return err
	}

	provider, err := media.NewDeviceProvider()
	if err != nil {
		return err
	}

	fmt.Println()
	sp := ui.NewConnectionSpinner("Connecting to relay...")
	sp.Start()

	client := signaling.NewClient(cfg.RelayURL)
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), joinTimeout)
	defer cancelConnect()
	if err := client.Connect(connectCtx); err != nil {
		sp.Error("Could not reach the relay")
		return err
	}
	sp.Stop()

	if created {
		fmt.Println(ui.NewRoomInfo(roomCode, cfg.RelayURL).View())
		fmt.Println()
	}

	coord := session.New(client, provider, rtc.PionFactory(cfg))

	board := ui.NewBoardModel(roomCode, client.Origin(), ui.Intents{
		Move: func(index int) {
			if g := coord.Game(); g != nil {
				g.SubmitMove(index)
			}
		},
		Restart: func() {
			if g := coord.Game(); g != nil {
				g.Restart()
			}
		},
		ToggleCamera: func() bool {
			if m := coord.Media(); m != nil {
				return m.ToggleCamera()
			}
			return false
		},
		ToggleMic: func() bool {
			if m := coord.Media(); m != nil {
				return m.ToggleMic()
			}
			return false
		},
		Stats: coord.Stats,
	})
	updates := board.UpdateChannel()

	coord.OnSnapshot(func(s game.Snapshot) {
		updates <- ui.BoardUpdate{Type: ui.UpdateSnapshot, Snapshot: s}
	})
	coord.OnPhaseChange(func(p rtc.Phase) {
		updates <- ui.BoardUpdate{Type: ui.UpdatePhase, Phase: p}
	})
	coord.OnPeerError(func(err error) {
		updates <- ui.BoardUpdate{Type: ui.UpdatePeerError, Err: err}
	})

	wait := ui.NewWaitingSpinner("Joining room...")
	wait.Start()
	attachCtx, cancelAttach := context.WithTimeout(context.Background(), joinTimeout)
	defer cancelAttach()
	if err := coord.Attach(attachCtx, roomCode); err != nil {
		wait.Error("Could not join the room")
		coord.Detach()
		return err
	}
	wait.Stop()

	start := time.Now()
	p := tea.NewProgram(board, tea.WithAltScreen())
	_, runErr := p.Run()
	board.Close()

	var result string
	if g := coord.Game(); g != nil {
		result = resultLabel(g.Snapshot(), client.Origin())
	}
	callState := coord.Phase().String()
	packets, bytes := coord.Stats()

	coord.Detach()
	if runErr != nil {
		return runErr
	}

	fmt.Println()
	ui.RenderSessionSummary(ui.SessionSummary{
		Room:      roomCode,
		Result:    result,
		CallState: callState,
		Duration:  fmt.Sprintf("%.0f seconds", time.Since(start).Seconds()),
		RxPackets: packets,
		RxBytes:   bytes,
	})

	return nil
}

// resultLabel turns the final snapshot into a one-word verdict for the
// summary table.
func resultLabel(s game.Snapshot, origin string) string {
	if s.Winner == nil {
		return "unfinished"
	}
	if *s.Winner == game.WinnerDraw {
		return "draw"
	}

	yours := game.MarkO
	if len(s.Players) > 0 && s.Players[0] == origin {
		yours = game.MarkX
	}
	if game.Winner(yours) == *s.Winner {
		return fmt.Sprintf("you won (%s)", yours)
	}
	return fmt.Sprintf("you lost (%s wins)", *s.Winner)
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVar(&flagJoinRelayURL, "relay-url", "", "Custom relay websocket URL")
	joinCmd.Flags().StringVarP(&flagJoinSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagJoinTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVar(&flagJoinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagJoinTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().BoolVar(&flagJoinRelay, "force-relay", false, "Force all media through TURN")
}
