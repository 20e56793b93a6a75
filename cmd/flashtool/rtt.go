// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bbnote/gohal/rtt"
	"github.com/bbnote/gohal/stlink"
	"github.com/spf13/cobra"
)

// followRtt copies one up channel to w until ctx is done.
func followRtt(ctx context.Context, r *rtt.Rtt, channel int, interval time.Duration, w io.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := r.Read(func(index int, data []byte) error {
			if index != channel {
				return nil
			}

			_, err := w.Write(data)
			return err
		})

		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *app) rttCommand() *cobra.Command {
	var channel int
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "rtt",
		Short: "Print a SEGGER RTT channel of the running target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupTarget(a.settings.Target)

			if err != nil {
				return err
			}

			probe, err := a.openProbe()

			if err != nil {
				return err
			}

			defer probe.Close()

			r, err := rtt.Find(probe, t.ramStart, t.ramSize)

			if err != nil {
				return err
			}

			if channel < 0 || channel >= len(r.Up()) {
				return errors.New("no such up channel on target")
			}

			a.log.Infof("following channel %d %q", channel, r.Up()[channel].Name)

			return followRtt(cmd.Context(), r, channel, interval, a.out)
		},
	}

	cmd.Flags().IntVar(&channel, "channel", 0, "up channel to print")
	cmd.Flags().DurationVar(&interval, "interval", 50*time.Millisecond, "poll interval")

	return cmd
}

var _ rtt.Memory = (*stlink.Probe)(nil)
