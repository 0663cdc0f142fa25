// ABOUTME: ctl and status commands for controller clients
// ABOUTME: Interactive control panel, one-shot settings and a printed device summary
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Resonate-Protocol/loopback-go/internal/client"
	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
	"github.com/Resonate-Protocol/loopback-go/internal/ui"
)

const replyTimeout = 2 * time.Second

var (
	ctlCmd = &cobra.Command{
		Use:   "ctl",
		Short: "Open the interactive control panel",
		Args:  cobra.NoArgs,
		RunE:  runCtl,
	}

	ctlSetCmd = &cobra.Command{
		Use:   "set COMMAND VALUE",
		Short: "Change one device setting",
		Long: "Change one device setting. Commands: volume (0-1), volume_db, mute (on/off), drift (0-1),\n" +
			"clock_source (0 fixed, 1 adjustable), sample_rate, box_name, box_acquired (on/off).",
		Example: "loopback ctl set volume 0.5\nloopback ctl set mute on\nloopback ctl set box_name \"Studio Box\"",
		Args:    cobra.ExactArgs(2),
		RunE:    runCtlSet,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the device state",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
)

func init() {
	ctlCmd.AddCommand(ctlSetCmd)
}

// parseControl turns a command and its argument into a device control
func parseControl(command, value string) (protocol.DeviceControl, error) {
	ctl := protocol.DeviceControl{Command: command}

	switch command {
	case protocol.CommandVolume, protocol.CommandVolumeDB, protocol.CommandDrift,
		protocol.CommandClockSource, protocol.CommandSampleRate:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return ctl, fmt.Errorf("%s needs a number: %w", command, err)
		}
		ctl.Value = v
	case protocol.CommandMute, protocol.CommandBoxAcquired:
		on, err := parseSwitch(value)
		if err != nil {
			return ctl, fmt.Errorf("%s: %w", command, err)
		}
		ctl.Enabled = &on
	case protocol.CommandBoxName:
		ctl.Name = value
	default:
		return ctl, fmt.Errorf("unknown command %q", command)
	}
	return ctl, nil
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(value)
}

// firstState waits for the device/state the server sends after the handshake
func firstState(c *client.Client) (protocol.DeviceState, error) {
	select {
	case st, ok := <-c.States:
		if !ok {
			return st, errors.New("server closed the connection")
		}
		return st, nil
	case <-time.After(replyTimeout):
		return protocol.DeviceState{}, errors.New("timed out waiting for device state")
	}
}

func runCtlSet(_ *cobra.Command, args []string) error {
	ctl, err := parseControl(args[0], args[1])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	c, err := connect(ctx, protocol.RoleController, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := firstState(c); err != nil {
		return err
	}
	if err := c.SendControl(ctl); err != nil {
		return err
	}
	// A state request queued behind the control tells us it was handled
	if err := c.RequestState(); err != nil {
		return err
	}

	timeout := time.After(replyTimeout)
	for {
		select {
		case e, ok := <-c.Errors:
			return serverError(e, ok)
		case st, ok := <-c.States:
			if !ok {
				return errors.New("server closed the connection")
			}
			// Errors are written before the state reply
			select {
			case e, ok := <-c.Errors:
				return serverError(e, ok)
			default:
			}
			printState(st)
			return nil
		case <-timeout:
			return errors.New("timed out waiting for the server")
		}
	}
}

func runStatus(_ *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	c, err := connect(ctx, protocol.RoleController, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	st, err := firstState(c)
	if err != nil {
		return err
	}
	hello := c.ServerHello()
	fmt.Printf("Server:    %s (%s, version %s)\n", hello.Name, hello.ServerID, hello.ProductVersion)
	printState(st)
	return nil
}

func printState(st protocol.DeviceState) {
	fmt.Printf("Box:       %s (acquired: %v)\n", st.Box.Name, st.Box.Acquired)
	fmt.Printf("Format:    %s Hz, %d channels, ring %s frames\n",
		humanize.Comma(int64(st.SampleRate)), st.Channels, humanize.Comma(int64(st.RingFrames)))
	if st.Pending != "" {
		fmt.Printf("Pending:   %s (requested %s Hz)\n", st.Pending, humanize.Comma(int64(st.RequestedSampleRate)))
	}
	fmt.Printf("Volume:    %.2f (%.1f dB), mute %v\n", st.Volume, st.VolumeDB, st.Mute)
	fmt.Printf("Clock:     %s, drift %.2f\n", st.ClockSourceName, st.Drift)
	fmt.Printf("Clients:   primary %d, mirror %d\n", st.PrimaryClients, st.MirrorClients)
	for _, d := range st.Devices {
		fmt.Printf("Device:    %s [%s] %s, %d ch, running %v\n", d.Name, d.Endpoint, d.UID, d.Channels, d.Running)
	}
	fmt.Printf("Transfers: %s writes, %s reads, %s squelched, %s overloads\n",
		humanize.Comma(int64(st.Counters.Writes)), humanize.Comma(int64(st.Counters.Reads)),
		humanize.Comma(int64(st.Counters.Squelched)), humanize.Comma(int64(st.Counters.Overloads)))
	if st.LastWriteSampleTime != nil {
		fmt.Printf("Written:   up to sample time %s\n", humanize.Comma(*st.LastWriteSampleTime))
	}
}

func runCtl(_ *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the control panel needs a terminal; use \"loopback ctl set\" or \"loopback status\"")
	}
	ctx, cancel := signalContext()
	defer cancel()
	c, err := connect(ctx, protocol.RoleController, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	controls := ui.NewControls()
	prog := ui.Run(controls)

	connected := true
	hello := c.ServerHello()
	go prog.Send(ui.StatusMsg{Connected: &connected, ServerName: hello.Name})
	go forwardToPanel(ctx, c, prog.Send)
	go forwardControls(ctx, c, controls)

	go func() {
		select {
		case <-ctx.Done():
			prog.Quit()
		case <-c.Done():
			disconnected := false
			prog.Send(ui.StatusMsg{Connected: &disconnected})
		}
	}()

	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("unable to run control panel: %w", err)
	}
	return nil
}

// forwardToPanel feeds server messages into the panel until the connection ends
func forwardToPanel(ctx context.Context, c *client.Client, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-c.States:
			if !ok {
				return
			}
			send(ui.StatusMsg{State: &st})
		case ev, ok := <-c.Events:
			if !ok {
				return
			}
			send(ui.StatusMsg{Event: &ev})
		case e, ok := <-c.Errors:
			if !ok {
				return
			}
			send(ui.StatusMsg{Error: &e})
		case _, ok := <-c.Changes:
			if !ok {
				return
			}
			// The server follows changes with a coalesced state; ask now for a snappier panel
			if err := c.RequestState(); err != nil {
				logger.Debug("failed to request state", "error", err)
			}
		case _, ok := <-c.Frames:
			if !ok {
				return
			}
		}
	}
}

// forwardControls sends panel actions to the server
func forwardControls(ctx context.Context, c *client.Client, controls *ui.Controls) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-controls.Quit:
			return
		case ctl := <-controls.Changes:
			if err := c.SendControl(ctl); err != nil {
				logger.Warn("failed to send control", "command", ctl.Command, "error", err)
			}
		}
	}
}
