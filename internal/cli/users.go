package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/st4rkjatt/videoChatSimple/internal/ui"
)

var flagWatch bool

var usersCmd = &cobra.Command{
	Use:     "users",
	Aliases: []string{"ls", "who"},
	Short:   "List who is online",
	Long: `List the participants connected to the relay.

Examples:
  videochat users
  videochat users --watch --name Alice`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listUsers(cmd.Context())
	},
}

func init() {
	usersCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "Keep printing the roster as it changes")
}

func listUsers(ctx context.Context) error {
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

	fmt.Println()
	ui.RenderIdentity(cc.Identity, cc.Name(), cfg.ServerURL)
	fmt.Println()
	ui.RenderRoster(cc.Identity, roster)
	if !flagWatch {
		return nil
	}

	for {
		select {
		case roster := <-cc.Handler.Roster:
			cc.Roster = roster
			fmt.Println()
			ui.RenderRoster(cc.Identity, roster)
		case <-cc.Handler.Disconnected:
			return fmt.Errorf("relay closed the connection")
		case <-ctx.Done():
			return nil
		}
	}
}
