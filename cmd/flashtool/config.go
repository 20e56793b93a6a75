// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"os"
	"strings"

	"github.com/bbnote/gohal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

type settings struct {
	Target string
	Probe  struct {
		Serial            string
		SpeedKHz          uint32 `mapstructure:"speed_khz"`
		ConnectUnderReset bool   `mapstructure:"connect_under_reset"`
	}
	Log struct {
		Level string
	}
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("flashtool")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.gohal")
	v.AddConfigPath("/etc/gohal")

	v.SetDefault("target", "stm32f4")
	v.SetDefault("probe.serial", "")
	v.SetDefault("probe.speed_khz", 1800)
	v.SetDefault("probe.connect_under_reset", false)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("GOHAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// loadSettings reads the config file if there is one. A missing file is
// not an error, every key has a default.
func loadSettings(v *viper.Viper) (settings, error) {
	var s settings

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError

		if !errors.As(err, &notFound) {
			return s, err
		}
	}

	if err := v.Unmarshal(&s); err != nil {
		return s, err
	}

	return s, nil
}

func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)

	if err != nil {
		return nil, err
	}

	logger := logrus.New()

	logger.SetFormatter(&prefixed.TextFormatter{
		TimestampFormat: "15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	})
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)

	gohal.SetLogger(logger)

	return logger, nil
}
