// Command relayctl drives a translation gateway from the terminal: it can stream
// audio files as a broadcaster or follow a session as a listener.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lexiqai/translation-gateway/internal/config"
	"github.com/lexiqai/translation-gateway/internal/observability"
)

var (
	serverURL string
	logLevel  string
	pretty    bool
	logger    zerolog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relayctl",
		Short: "Broadcast to or listen on a live translation session",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			observability.InitLogger(logLevel, pretty)
			logger = observability.Component("relayctl")
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", config.GetEnv("RELAY_SERVER", "ws://localhost:8080/ws"), "gateway WebSocket URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "human readable logs")

	rootCmd.AddCommand(broadcastCmd())
	rootCmd.AddCommand(listenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
