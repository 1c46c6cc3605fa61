package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var logLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scriptedemitter",
	Short: "Replays scripted timelines of data and status events in place of real devices.",
	Long: `Scripted emitters replay a pre-authored, looping timeline of data and status events. ` +
		`They can be driven over an HTTP API, stream their events to the data platform and expose ` +
		`their latest data as modbus registers.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		err := level.UnmarshalText([]byte(logLevel))
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "debug", "log level: debug, info, warn or error")
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
