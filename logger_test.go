// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gohal_test

import (
	"bytes"
	"testing"

	"github.com/bbnote/gohal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogger(t *testing.T) {
	previous := gohal.Logger()
	t.Cleanup(func() { gohal.SetLogger(previous) })

	var out bytes.Buffer

	custom := logrus.New()
	custom.SetOutput(&out)
	custom.SetLevel(logrus.DebugLevel)

	gohal.SetLogger(custom)
	require.Same(t, custom, gohal.Logger())

	gohal.Logger().Debug("sector erased")
	assert.Contains(t, out.String(), "sector erased")

	gohal.SetLogger(nil)
	assert.NotNil(t, gohal.Logger())
	assert.NotSame(t, custom, gohal.Logger())
}
