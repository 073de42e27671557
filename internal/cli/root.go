package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/st4rkjatt/videoChatSimple/internal/config"
	"github.com/st4rkjatt/videoChatSimple/internal/peer"
	"github.com/st4rkjatt/videoChatSimple/internal/ui"
	"github.com/st4rkjatt/videoChatSimple/internal/version"
)

var (
	flagServer   string
	flagName     string
	flagCodec    string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "videochat",
	Short: "One-to-one video calls over WebRTC through a signaling relay",
	Long: `videochat connects to a signaling relay, lists who is online and places
or answers one-to-one WebRTC calls. The relay only forwards offers, answers
and ICE candidates; media flows directly between the peers.`,
	Version: version.Version,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServer, "server", "", "Relay URL (ws://, wss://, http(s):// or host) [env VIDEOCHAT_SERVER]")
	pf.StringVarP(&flagName, "name", "n", "", "Display name shown to others [env VIDEOCHAT_NAME]")
	pf.StringVar(&flagCodec, "codec", "", "Wire codec: json or msgpack [env VIDEOCHAT_CODEC]")
	pf.StringVar(&flagSTUN, "stun", "", "STUN server URL [env STUN_SERVER]")
	pf.StringVar(&flagTURN, "turn", "", "TURN server host [env TURN_SERVER]")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username [env TURN_USERNAME]")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password [env TURN_PASSWORD]")
	pf.BoolVar(&flagRelay, "relay", false, "Force all media through TURN")

	rootCmd.AddCommand(usersCmd, callCmd, listenCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func currentOptions() config.Options {
	return config.Options{
		Server:     flagServer,
		Name:       flagName,
		Codec:      flagCodec,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	}
}

// LoadConfig resolves flags and environment into a Config.
func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, peer.NewError("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}
