package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/st4rkjatt/videoChatSimple/internal/peer"
	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
	"github.com/st4rkjatt/videoChatSimple/internal/ui"
)

var callCmd = &cobra.Command{
	Use:     "call <identity|name>",
	Aliases: []string{"c"},
	Short:   "Call someone who is online",
	Long: `Place a video call. The target is an identity from "videochat users"
or a display name that only one participant is using.

The CLI only receives media, it has no camera or microphone. Tracks and
bytes in the call summary come from browser peers; a call between two CLI
peers connects with no media flowing.

Examples:
  videochat call Bob
  videochat call 3f0c8a4e-5d1b-4f55-9a53-0c8f0b7a1d2e
  videochat call --relay --turn turn.example.com Bob`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return placeCall(cmd.Context(), args[0])
	},
}

func placeCall(ctx context.Context, who string) error {
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

	roster, err := cc.WaitRoster(ctx)
	if err != nil {
		return err
	}
	stopSpinner()

	target, err := resolveTarget(roster, cc.Identity, who)
	if err != nil {
		return err
	}

	g := &gate{client: cc.Client}
	p, err := peer.New(cfg, g)
	if err != nil {
		return err
	}
	defer p.Close()

	offer, err := p.Offer()
	if err != nil {
		return err
	}

	cc.Client.Send(&protocol.Message{
		Type:    protocol.TypeCallRequest,
		Target:  target.Identity,
		Payload: offer,
	})
	g.Open()

	fmt.Println()
	view := ui.NewCallUI(target.Name, false)
	view.Start()
	res, err := runCall(ctx, cc, p, view, target.Identity)
	view.Stop()

	if err != nil {
		return err
	}
	printSummary(target.Name, res)
	return nil
}
