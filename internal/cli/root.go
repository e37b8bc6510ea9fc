// Package cli implements tunnelctl, the command-line client of the
// secure-tunnel relay.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"secure-tunnel/internal/ipc"
)

var (
	socketPath string
	rpcTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "tunnelctl",
	Short:        "Control the secure-tunnel service",
	Long:         "Sends lifecycle commands and engine configuration to the secure-tunnel service over its local relay, and prints its state and events.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "relay endpoint (unix socket path or named pipe); platform default when empty")
	rootCmd.PersistentFlags().DurationVar(&rpcTimeout, "timeout", 10*time.Second, "timeout for request/response calls")
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// dial connects to the relay.
var dial = func() (*ipc.Client, error) {
	return ipc.Dial(newTransport(socketPath))
}

// withClient dials the relay and calls fn with a request-scoped context.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *ipc.Client) error) error {
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), rpcTimeout)
	defer cancel()
	return fn(ctx, c)
}
