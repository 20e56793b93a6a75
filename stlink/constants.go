// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package stlink

// Mode is the transport the probe talks to the target with.
type Mode uint8

const (
	ModeUnknown Mode = iota
	ModeDfu
	ModeMass
	ModeDebugSwd
	ModeDebugSwim
)

func (m Mode) String() string {
	switch m {
	case ModeDfu:
		return "dfu"
	case ModeMass:
		return "mass storage"
	case ModeDebugSwd:
		return "swd"
	case ModeDebugSwim:
		return "swim"
	default:
		return "unknown"
	}
}

// feature flags, used as bit indices into Version.flags
const (
	flagHasTrace = iota
	flagHasSwdSetFreq
	flagHasJtagSetFreq
	flagHasMem16Bit
	flagHasGetLastRwStatus2
	flagHasDapReg
	flagQuirkJtagDpRead
	flagHasApInit
	flagHasDpBankSel
	flagHasRw8Bytes512
	flagFixCloseAp

	flagCount

	flagHasTargetVolt = flagHasTrace
)

type apiVersion uint8

const (
	jTagApiV1 apiVersion = 1
	jTagApiV2 apiVersion = 2
	jTagApiV3 apiVersion = 3
)

// usb endpoint numbers, without direction bit
const (
	rxEndpoint      = 1
	txEndpoint      = 2
	txEndpointApiV3 = 1
)

// device modes as reported by cmdGetCurrentMode
const (
	deviceModeDfu        = 0x00
	deviceModeMass       = 0x01
	deviceModeDebug      = 0x02
	deviceModeSwim       = 0x03
	deviceModeBootloader = 0x04
)

const (
	swimErrorOk                  = 0x00
	swimErrorBusy                = 0x01
	debugErrorOk                 = 0x80
	debugErrorFault              = 0x81
	jTagGetIdCodeError           = 0x09
	jTagWriteError               = 0x0c
	jTagWriteVerifyError         = 0x0d
	swdAccessPortWait            = 0x10
	swdAccessPortFault           = 0x11
	swdAccessPortError           = 0x12
	swdAccessPortParityError     = 0x13
	swdDebugPortWait             = 0x14
	swdDebugPortFault            = 0x15
	swdDebugPortError            = 0x16
	swdDebugPortParityError      = 0x17
	swdAccessPortWDataError      = 0x18
	swdAccessPortStickyError     = 0x19
	swdAccessPortStickOrRunError = 0x1a
	badAccessPortError           = 0x1d
)

const (
	stLinkVid = 0x0483

	stLinkV1Pid          = 0x3744
	stLinkV2Pid          = 0x3748
	stLinkV21Pid         = 0x374b
	stLinkV21NoMsdPid    = 0x3752
	stLinkV3UsbLoaderPid = 0x374d
	stLinkV3EPid         = 0x374e
	stLinkV3SPid         = 0x374f
	stLinkV32VcpPid      = 0x3753
)

const (
	cmdGetVersion       = 0xf1
	cmdDebug            = 0xf2
	cmdDfu              = 0xf3
	cmdSwim             = 0xf4
	cmdGetCurrentMode   = 0xf5
	cmdGetTargetVoltage = 0xf7
)

const (
	debugReadMem32Bit          = 0x07
	debugWriteMem32Bit         = 0x08
	debugReadMem8Bit           = 0x0c
	debugWriteMem8Bit          = 0x0d
	debugEnterSwdNoReset       = 0xa3
	debugExit                  = 0x21
	debugApiV2Enter            = 0x30
	debugApiV2ReadIdCodes      = 0x31
	debugApiV2GetLastRWStatus  = 0x3b
	debugApiV2DriveNrst        = 0x3c
	debugApiV2GetLastRWStatus2 = 0x3e
	debugApiV2SwdSetFreq       = 0x43
	debugApiV2InitAccessPort   = 0x4b

	debugApiV3SetComFreq   = 0x61
	debugApiV3GetComFreq   = 0x62
	debugApiV3GetVersionEx = 0xfb
)

const (
	dfuExit   = 0x07
	swimExit  = 0x01
	nrstLow   = 0x00
	nrstHigh  = 0x01
	comFreqNb = 10
)

const (
	maximumWaitRetries = 8
	accessPortMaximum  = 255

	cpuIdBaseRegister = 0xe000ed00

	maxReadWrite8   = 64
	v3MaxReadWrite8 = 512

	cmdSizeV2      = 16
	dataBufferSize = 4096
)
