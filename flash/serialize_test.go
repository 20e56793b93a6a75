// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbnote/gohal/flash"
	"github.com/bbnote/gohal/flash/flashtest"
)

type bootHeader struct {
	Magic   uint32
	Version uint16
	Flags   uint16
	Length  uint32
}

func TestSerializeRoundTrip(t *testing.T) {
	dev := flashtest.Must(smallGeometry, false)
	header := bootHeader{Magic: 0xb007_c0de, Version: 3, Flags: 0x11, Length: 4096}

	require.NoError(t, flash.Serialize(dev, 0x2080, header))
	assert.Equal(t, []byte{0xde, 0xc0, 0x07, 0xb0, 0x03, 0x00}, readBack(t, dev, 0x2080, 6))

	var got bootHeader
	require.NoError(t, flash.Deserialize(dev, 0x2080, &got))
	assert.Equal(t, header, got)

	var bad []int
	assert.Error(t, flash.Deserialize(dev, 0x2080, &bad))
}
