// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bbnote/gohal/flash"
	"github.com/bbnote/gohal/nb"
	"github.com/bbnote/gohal/stlink"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const pollInterval = time.Millisecond

type app struct {
	v        *viper.Viper
	settings settings
	log      *logrus.Logger
	out      io.Writer
}

func newRootCommand() *cobra.Command {
	a := &app{v: newViper()}

	var configFile string

	root := &cobra.Command{
		Use:           "flashtool",
		Short:         "Program microcontroller flash through an ST-Link probe",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				a.v.SetConfigFile(configFile)
			}

			s, err := loadSettings(a.v)

			if err != nil {
				return err
			}

			a.settings = s
			a.out = cmd.OutOrStdout()
			a.log, err = newLogger(s.Log.Level)

			return err
		},
	}

	flags := root.PersistentFlags()

	flags.StringVar(&configFile, "config", "", "config file (default flashtool.yaml in ., $HOME/.gohal, /etc/gohal)")
	flags.String("target", "stm32f4", fmt.Sprintf("target family %v", targetNames()))
	flags.String("serial", "", "serial number of the probe to use")
	flags.Uint32("speed", 1800, "swd clock in kHz")
	flags.Bool("connect-under-reset", false, "hold the target in reset while connecting")
	flags.String("log-level", "info", "log level")

	a.v.BindPFlag("target", flags.Lookup("target"))
	a.v.BindPFlag("probe.serial", flags.Lookup("serial"))
	a.v.BindPFlag("probe.speed_khz", flags.Lookup("speed"))
	a.v.BindPFlag("probe.connect_under_reset", flags.Lookup("connect-under-reset"))
	a.v.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(
		a.infoCommand(),
		a.readCommand(),
		a.writeCommand(),
		a.eraseCommand(),
		a.crcCommand(),
		a.receiveCommand(),
		a.rttCommand(),
	)

	return root
}

func (a *app) openProbe() (*stlink.Probe, error) {
	config := stlink.NewConfig(stlink.AllVids, stlink.AllPids, a.settings.Probe.Serial,
		a.settings.Probe.SpeedKHz, a.settings.Probe.ConnectUnderReset)

	return stlink.Open(config)
}

// withFlash connects to the probe, opens the flash of the configured
// target and releases both after fn returns.
func (a *app) withFlash(fn func(probe *stlink.Probe, dev flash.ReadWrite) error) error {
	t, err := lookupTarget(a.settings.Target)

	if err != nil {
		return err
	}

	probe, err := a.openProbe()

	if err != nil {
		return err
	}

	defer probe.Close()

	dev, release, err := t.open(probe)

	if err != nil {
		return fmt.Errorf("could not open %s flash: %w", a.settings.Target, err)
	}

	defer func() {
		if err := release(); err != nil {
			a.log.Warn("could not release flash: ", err)
		}
	}()

	return fn(probe, dev)
}

// poll retries op while the device is busy.
func poll(ctx context.Context, op func() error) error {
	return nb.Poll(ctx, pollInterval, op)
}
