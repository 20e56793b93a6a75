// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package gohal is a hardware abstraction layer for flash controllers,
// external NOR flash chips and GPIO ownership on microcontrollers.
//
// The root package only carries the logger shared by all sub packages.
package gohal

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var logger atomic.Pointer[logrus.Logger]

func init() {
	logger.Store(logrus.New())
}

// SetLogger replaces the logger used by every gohal package. nil restores
// a fresh default logger.
func SetLogger(loggerInstance *logrus.Logger) {
	if loggerInstance == nil {
		loggerInstance = logrus.New()
	}

	logger.Store(loggerInstance)
}

// Logger returns the logger currently in use.
func Logger() *logrus.Logger {
	return logger.Load()
}
