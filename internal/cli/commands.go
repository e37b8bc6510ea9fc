package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"secure-tunnel/internal/core"
	"secure-tunnel/internal/engine"
	"secure-tunnel/internal/ipc"
	"secure-tunnel/internal/platform"
)

// version is injected via ldflags at compile time.
var version = "dev"

func init() {
	for _, c := range []core.Command{core.CommandStart, core.CommandStop, core.CommandExit} {
		rootCmd.AddCommand(newLifecycleCmd(c))
	}
	watchCmd.Flags().Bool("json", false, "print one JSON object per event")
	rootCmd.AddCommand(statusCmd, configureCmd, watchCmd, uriCmd, versionCmd)
}

var lifecycleShort = map[core.Command]string{
	core.CommandStart: "Route all traffic through the tunnel",
	core.CommandStop:  "Tear the tunnel down",
	core.CommandExit:  "Tear the tunnel down and terminate the service",
}

func newLifecycleCmd(c core.Command) *cobra.Command {
	return &cobra.Command{
		Use:   c.String(),
		Short: lifecycleShort[c],
		Long:  "Requests are queued by the service and carried out asynchronously; use 'watch' to observe the outcome.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendCommand(cmd, c)
		},
	}
}

func sendCommand(cmd *cobra.Command, c core.Command) error {
	return withClient(cmd, func(ctx context.Context, client *ipc.Client) error {
		if err := client.Command(ctx, c.String()); err != nil {
			return fmt.Errorf("%s: %w", c, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s requested\n", c)
		return nil
	})
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the committed tunnel state (INSECURE or SECURE)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, client *ipc.Client) error {
			state, err := client.Status(ctx)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), state)
			return nil
		})
	},
}

var configureCmd = &cobra.Command{
	Use:   "configure [file|-]",
	Short: "Send an engine configuration payload (WireGuard UAPI text)",
	Long:  "Reads the payload from file, or from stdin when file is '-' or omitted. wg-quick files are translated to UAPI first; UAPI text is passed through unchanged.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readPayload(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, client *ipc.Client) error {
			if err := client.Configure(ctx, payload); err != nil {
				return fmt.Errorf("configure: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration sent (%d bytes)\n", len(payload))
			return nil
		})
	},
}

func readPayload(stdin io.Reader, args []string) (string, error) {
	var data []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("read payload: %w", err)
	}
	payload := string(data)
	if engine.IsConf(payload) {
		conf, err := engine.ParseConf(strings.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("parse wg-quick config: %w", err)
		}
		payload = conf.UAPI
	}
	return payload, nil
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream relay events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		client, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()

		out := cmd.OutOrStdout()
		enc := json.NewEncoder(out)
		return client.Watch(cmd.Context(), func(ev ipc.Event) error {
			if asJSON {
				return enc.Encode(map[string]string{"event": ev.Name, "payload": ev.Payload})
			}
			_, err := fmt.Fprintf(out, "%s\t%s\n", ev.Name, ev.Payload)
			return err
		})
	},
}

var uriCmd = &cobra.Command{
	Use:   "uri <" + platform.ActionScheme + ":command>",
	Short: "Handle an activated notification button",
	Long:  "Registered as the " + platform.ActionScheme + ": protocol handler so that notification buttons reach the service.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := parseActionURI(args[0])
		if err != nil {
			return err
		}
		return sendCommand(cmd, c)
	},
}

// parseActionURI extracts the command from "secure-tunnel:stop" or "secure-tunnel://stop/".
func parseActionURI(raw string) (core.Command, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), platform.ActionScheme+":")
	if !ok {
		return 0, fmt.Errorf("unexpected URI %q: want %s:<command>", raw, platform.ActionScheme)
	}
	rest = strings.TrimSuffix(strings.TrimPrefix(rest, "//"), "/")
	return core.ParseCommand(rest)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tunnelctl %s\n", version)
	},
}
