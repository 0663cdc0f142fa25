// ABOUTME: discover and events commands
// ABOUTME: Lists servers found over mDNS and follows the device event socket
package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/loopback-go/internal/discovery"
	"github.com/Resonate-Protocol/loopback-go/internal/events"
)

var (
	discoverWait time.Duration
	eventsAddr   string

	discoverCmd = &cobra.Command{
		Use:   "discover",
		Short: "List loopback servers on the local network",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			servers, err := discovery.Lookup(ctx, discoverWait)
			if err != nil {
				return err
			}
			if len(servers) == 0 {
				fmt.Println("No servers found")
				return nil
			}
			sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
			for _, s := range servers {
				fmt.Printf("%-24s %-22s", s.Name, s.Addr())
				if v := s.Info["version"]; v != "" {
					fmt.Printf(" version %s", v)
				}
				fmt.Println()
			}
			return nil
		},
	}

	eventsCmd = &cobra.Command{
		Use:   "events",
		Short: "Print device start and stop events",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			msgs, err := events.Watch(ctx, eventsAddr)
			if err != nil {
				return err
			}
			for msg := range msgs {
				fmt.Printf("%s device %d %s\n", time.Now().Format(time.TimeOnly), msg.DeviceID, msg.Event)
			}
			return nil
		},
	}
)

func init() {
	discoverCmd.Flags().DurationVar(&discoverWait, "wait", discoverTimeout, "How long to browse")
	eventsCmd.Flags().StringVar(&eventsAddr, "addr", events.DefaultAddr, "Event socket address")
}
