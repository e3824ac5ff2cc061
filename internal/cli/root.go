package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/loqalabs/loqa-mic/internal/version"
)

// hostID keys the single capture session a CLI process owns.
const hostID = "cli"

type Dependencies struct {
	ConfigPath string
	Config     config.Config
	Logger     *slog.Logger

	transport string
	url       string
	verbose   bool
}

// ErrReported marks an error the terminal UI already printed.
var ErrReported = errors.New("reported")

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "loqa-mic",
		Short:         "Record speech and get it transcribed",
		Long:          "Capture audio from the microphone, upload it over the capture channel and print the transcription and analysis.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return deps.load(cmd.Flags().Changed("config"))
		},
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full("loqa-mic") + "\n")

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&deps.ConfigPath, "config", "c", "loqa-mic.yaml", "Path to configuration file")
	flags.StringVar(&deps.transport, "transport", "", "Channel transport: websocket or nats")
	flags.StringVar(&deps.url, "url", "", "Channel URL (websocket) or server URL (nats)")
	flags.BoolVarP(&deps.verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewSendCmd(deps))
	rootCmd.AddCommand(NewSelfTestCmd(deps))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full("loqa-mic"))
		},
	})

	return rootCmd
}

func (d *Dependencies) load(explicit bool) error {
	path := d.ConfigPath
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if d.transport != "" {
		cfg.Capture.Transport = d.transport
	}
	if d.url != "" {
		if cfg.Capture.Transport == "nats" {
			cfg.Capture.NATSURL = d.url
		} else {
			cfg.Capture.ChannelURL = d.url
		}
	}
	d.Config = cfg

	if d.Logger == nil {
		level := slog.LevelWarn
		if d.verbose {
			level = slog.LevelDebug
		}
		d.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return nil
}

func (d *Dependencies) responseTimeout() time.Duration {
	return time.Duration(d.Config.Capture.ResponseTimeout) * time.Millisecond
}
