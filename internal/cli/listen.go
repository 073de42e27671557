package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/st4rkjatt/videoChatSimple/internal/callclient"
	"github.com/st4rkjatt/videoChatSimple/internal/peer"
	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
	"github.com/st4rkjatt/videoChatSimple/internal/ui"
)

var (
	flagAutoAccept bool
	flagOnce       bool
)

var listenCmd = &cobra.Command{
	Use:     "listen",
	Aliases: []string{"l"},
	Short:   "Wait for incoming calls",
	Long: `Stay online and answer incoming calls. Media is received only; see
"videochat call --help".

Examples:
  videochat listen --name Bob
  videochat listen --auto-accept --once`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listen(cmd.Context())
	},
}

func init() {
	listenCmd.Flags().BoolVarP(&flagAutoAccept, "auto-accept", "y", false, "Answer every call without asking")
	listenCmd.Flags().BoolVar(&flagOnce, "once", false, "Exit after the first call")
}

func listen(ctx context.Context) error {
	cfg, err := LoadConfig(currentOptions())
	if err != nil {
		return err
	}

	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	defer stopSpinner()
	cc, err := NewConnectionContext(ctx, cfg)
	if err != nil {
		return err
	}
	defer cc.Close()

	if _, err := cc.WaitRoster(ctx); err != nil {
		return err
	}
	stopSpinner()

	fmt.Println()
	ui.RenderIdentity(cc.Identity, cc.Name(), cfg.ServerURL)
	fmt.Println()

	for {
		incoming, err := waitForCall(ctx, cc)
		if err != nil || incoming == nil {
			return err
		}

		err = answer(ctx, cc, incoming)
		switch {
		case errors.Is(err, peer.ErrPeerDisconnected):
			return err
		case err != nil:
			peer.PrintErr(err)
		}
		if flagOnce {
			return nil
		}
	}
}

// waitForCall blocks until someone calls. It returns nil when ctx ends.
func waitForCall(ctx context.Context, cc *ConnectionContext) (*callclient.IncomingCall, error) {
	waiting := ui.NewWaitingSpinner(waitingMessage(len(cc.Roster)))
	waiting.Start()
	defer waiting.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-cc.Handler.Disconnected:
			return nil, peer.NewError("listen", peer.ErrPeerDisconnected)
		case roster := <-cc.Handler.Roster:
			cc.Roster = roster
			waiting.UpdateMessage(waitingMessage(len(roster)))
		case incoming := <-cc.Handler.IncomingCall:
			cc.Handler.Reset()
			return incoming, nil
		}
	}
}

func waitingMessage(online int) string {
	return fmt.Sprintf("Waiting for calls... %d online", online)
}

// answer rings, then runs the call if the user picks up.
func answer(ctx context.Context, cc *ConnectionContext, incoming *callclient.IncomingCall) error {
	name := incoming.FromName
	if name == "" {
		name = incoming.From
	}

	view := ui.NewCallUI(name, !flagAutoAccept)
	view.Start()
	defer view.Stop()

	if !flagAutoAccept {
		accepted, reason, err := awaitDecision(ctx, cc, view, incoming.From)
		if err != nil || !accepted {
			if reason != "" {
				ui.PrintInfof("Call from %s ended: %s", name, reason)
			}
			return err
		}
	}

	g := &gate{client: cc.Client}
	p, err := peer.New(cc.Config, g)
	if err != nil {
		cc.Client.Send(&protocol.Message{Type: protocol.TypeCallReject})
		return err
	}
	defer p.Close()

	sdp, err := p.Answer(incoming.Offer)
	if err != nil {
		cc.Client.Send(&protocol.Message{Type: protocol.TypeCallReject})
		return err
	}

	cc.Client.Send(&protocol.Message{Type: protocol.TypeCallAccept, Payload: sdp})
	g.Open()
	view.SetPhase(ui.PhaseConnecting, "")

	res, err := runCall(ctx, cc, p, view, incoming.From)
	view.Stop()
	if err != nil {
		return err
	}
	printSummary(name, res)
	return nil
}

// awaitDecision waits for the user to pick up, or for the caller to give up.
func awaitDecision(ctx context.Context, cc *ConnectionContext, view callView, caller string) (bool, string, error) {
	reject := func() {
		cc.Client.Send(&protocol.Message{Type: protocol.TypeCallReject})
	}

	for {
		select {
		case a := <-view.Actions():
			switch a {
			case ui.ActionAccept:
				return true, "", nil
			case ui.ActionReject, ui.ActionHangup:
				reject()
				return false, protocol.ReasonRejected, nil
			}

		case ended := <-cc.Handler.CallEnded:
			if ended.From != caller {
				slog.Debug("Ignoring end of another call", "from", ended.From)
				continue
			}
			view.SetPhase(ui.PhaseEnded, ended.Reason)
			return false, ended.Reason, nil

		case e := <-cc.Handler.Error:
			slog.Warn("Relay reported an error", "code", e.Code, "message", e.Message)

		case <-cc.Handler.Disconnected:
			return false, "", peer.NewError("answer", peer.ErrPeerDisconnected)

		case <-ctx.Done():
			reject()
			return false, "", nil
		}
	}
}
