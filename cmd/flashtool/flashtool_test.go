// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bbnote/gohal/flash"
	"github.com/bbnote/gohal/flash/flashtest"
	"github.com/bbnote/gohal/regs/regstest"
	"github.com/bbnote/gohal/rtt"
	"github.com/bbnote/gohal/xmodem"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDevice(t *testing.T) *flashtest.FakeFlash {
	t.Helper()

	return flashtest.Must(flash.Geometry{Base: 0x1000, PageSize: 64, PagesPerSubsector: 4, SubsectorsPerSector: 4, Sectors: 4}, true)
}

func TestHexdump(t *testing.T) {
	var out bytes.Buffer

	data := append([]byte("Hello, flash!\x00\x01\x02"), 0xff, 0xff, 'x')
	require.NoError(t, hexdump(&out, 0x0800_0000, data, false))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "08000000  48 65 6c 6c 6f 2c 20 66  6c 61 73 68 21 00 01 02  |Hello, flash!...|", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "08000010  ff ff 78 "))
	assert.True(t, strings.HasSuffix(lines[1], "|..x|"))
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := loadSettings(newViper())
	require.NoError(t, err)

	assert.Equal(t, "stm32f4", s.Target)
	assert.Equal(t, uint32(1800), s.Probe.SpeedKHz)
	assert.False(t, s.Probe.ConnectUnderReset)
	assert.Equal(t, "info", s.Log.Level)
}

func TestLoadSettingsFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()

	config := "target: max3263\nprobe:\n  serial: 0670FF3\n  connect_under_reset: true\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flashtool.yaml"), []byte(config), 0o644))

	t.Setenv("GOHAL_PROBE_SPEED_KHZ", "4000")

	v := newViper()
	v.SetConfigFile(filepath.Join(dir, "flashtool.yaml"))

	s, err := loadSettings(v)
	require.NoError(t, err)

	assert.Equal(t, "max3263", s.Target)
	assert.Equal(t, "0670FF3", s.Probe.Serial)
	assert.Equal(t, uint32(4000), s.Probe.SpeedKHz)
	assert.True(t, s.Probe.ConnectUnderReset)
	assert.Equal(t, "debug", s.Log.Level)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("trace")
	require.NoError(t, err)
	assert.Equal(t, logrus.TraceLevel, logger.GetLevel())

	_, err = newLogger("loud")
	assert.Error(t, err)
}

func TestLookupTarget(t *testing.T) {
	assert.Equal(t, []string{"efm32gg11b", "max3263", "stm32f4"}, targetNames())

	tgt, err := lookupTarget("STM32F4")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x2000_0000), tgt.ramStart)

	_, err = lookupTarget("avr")
	assert.ErrorContains(t, err, "max3263")
}

func TestPadImage(t *testing.T) {
	assert.Equal(t, []byte{1, 2, 3, 4}, padImage([]byte{1, 2, 3, 4}, 4))
	assert.Equal(t, []byte{1, 2, 0xff, 0xff}, padImage([]byte{1, 2}, 4))
}

func TestRangeCrc(t *testing.T) {
	dev := fakeDevice(t)

	require.NoError(t, dev.Write(0x1100, []byte("123456789")))

	crc, err := rangeCrc(dev, 0x1100, 9)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x31c3), crc)

	_, err = rangeCrc(dev, 0x1000+flash.Address(dev.Map.Size())-4, 8)
	assert.Error(t, err)
}

// scriptedPort plays back a sender and swallows the receiver's answers.
type scriptedPort struct {
	*bytes.Reader
}

func (p scriptedPort) Read(b []byte) (int, error) {
	if p.Len() == 0 {
		return 0, os.ErrDeadlineExceeded
	}

	return p.Reader.Read(b)
}

func (scriptedPort) Write(b []byte) (int, error) {
	return len(b), nil
}

func TestReceiveImage(t *testing.T) {
	dev := fakeDevice(t)

	var script, image []byte

	for i := range 3 {
		data := bytes.Repeat([]byte{byte(0x10 + i)}, xmodem.BlockSize)
		crc := xmodem.Checksum(data)

		script = append(script, 0x01, byte(i+1), ^byte(i+1))
		script = append(script, data...)
		script = append(script, byte(crc>>8), byte(crc))
		image = append(image, data...)
	}

	script = append(script, 0x04)

	blocks, err := receiveImage(dev, scriptedPort{bytes.NewReader(script)}, 0x1400)
	require.NoError(t, err)
	assert.Equal(t, 3, blocks)

	got := make([]byte, len(image))
	require.NoError(t, dev.Read(0x1400, got))
	assert.Equal(t, image, got)
}

func TestFollowRtt(t *testing.T) {
	ram := make([]byte, 512)
	copy(ram[0x40:], "SEGGER RTT")
	ram[0x40+16] = 1 // up
	ram[0x40+20] = 1 // down

	up := ram[0x40+24:]
	copy(up[4:], []byte{0x00, 0x01, 0x00, 0x20}) // buffer at 0x20000100
	up[8] = 32                                   // size
	up[12] = 6                                   // wrOff
	copy(ram[0x100:], "ready\n")

	sim := regstest.NewSim()
	sim.AddMemory(0x2000_0000, ram)

	r, err := rtt.Find(sim, 0x2000_0000, uint32(len(ram)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	require.NoError(t, followRtt(ctx, r, 0, time.Millisecond, &out))
	assert.Equal(t, "ready\n", out.String())
}
