// ABOUTME: Entry point for the loopback command line client
// ABOUTME: Plays into, listens to, records and controls a running loopback device
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/loopback-go/internal/client"
	"github.com/Resonate-Protocol/loopback-go/internal/config"
	"github.com/Resonate-Protocol/loopback-go/internal/discovery"
	"github.com/Resonate-Protocol/loopback-go/internal/logging"
	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
	"github.com/Resonate-Protocol/loopback-go/internal/version"
)

const discoverTimeout = 3 * time.Second

var (
	serverAddr string
	clientName string
	endpoint   string
	logLevel   string

	logger *log.Logger
	debug  config.Debug

	rootCmd = &cobra.Command{
		Use:           "loopback",
		Short:         "Talk to a running loopback device",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if debug, err = config.ParseDebug(); err != nil {
				return err
			}
			// The interactive panel owns the terminal
			quiet := cmd == ctlCmd
			logger, _, err = logging.New(logging.Config{Level: logLevel, Quiet: quiet, Trace: debug.Trace})
			return err
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&serverAddr, "server", "s", "localhost:8928", "Server address (empty to discover over mDNS)")
	pf.StringVar(&clientName, "name", "", "Client friendly name (default: hostname-loopback-<role>)")
	pf.StringVarP(&endpoint, "endpoint", "e", "primary", "Device endpoint (primary or mirror)")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(playCmd, listenCmd, recordCmd, ctlCmd, statusCmd, discoverCmd, eventsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// resolveServer returns the configured address or the first server found over mDNS
func resolveServer(ctx context.Context) (string, error) {
	if serverAddr != "" {
		return serverAddr, nil
	}
	servers, err := discovery.Lookup(ctx, discoverTimeout)
	if err != nil {
		return "", err
	}
	if len(servers) == 0 {
		return "", errors.New("no loopback server found")
	}
	logger.Info("discovered server", "name", servers[0].Name, "addr", servers[0].Addr())
	return servers[0].Addr(), nil
}

func defaultName(role string) string {
	if clientName != "" {
		return clientName
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-loopback-%s", hostname, role)
}

// serverError turns a message from the Errors channel into an error
func serverError(e protocol.ServerError, ok bool) error {
	if !ok {
		return errors.New("server closed the connection")
	}
	return fmt.Errorf("server error: %s: %s", e.Error, e.Message)
}

// connect dials the server and completes the handshake for role
func connect(ctx context.Context, role string, format *protocol.AudioFormat) (*client.Client, error) {
	addr, err := resolveServer(ctx)
	if err != nil {
		return nil, err
	}

	c := client.NewClient(client.Config{
		ServerAddr: addr,
		ClientID:   uuid.NewString(),
		Name:       defaultName(role),
		Role:       role,
		Endpoint:   endpoint,
		Format:     format,
		Logger:     logger,
	})
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
