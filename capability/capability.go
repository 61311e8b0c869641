// Package capability provides bitmask algebra that describes the set of
// buffer shapes and formats an algo pin accepts.
//
// Every axis of a buffer descriptor maps onto a bit in the corresponding
// mask. A descriptor is accepted by a pin set if each of its axis bits is
// contained in the pin set mask.
package capability

import (
	"fmt"

	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/fault"
)

// Mask is a set of bit-flags of a single axis.
type Mask uint32

// Has returns true if all bits of o are set in m.
func (m Mask) Has(o Mask) bool {
	return o != 0 && m&o == o
}

// Interleaving masks.
const (
	InterleavingNo   Mask = 1 << Mask(buffer.NonInterleaved)
	InterleavingYes  Mask = 1 << Mask(buffer.Interleaved)
	InterleavingBoth      = InterleavingNo | InterleavingYes
)

// Domain masks.
const (
	DomainTime     Mask = 1 << Mask(buffer.Time)
	DomainFreq     Mask = 1 << Mask(buffer.Frequency)
	DomainTimeFreq      = DomainTime | DomainFreq
)

// Encoding masks.
const (
	TypePDMLSB    Mask = 1 << Mask(buffer.PDMLSB)
	TypePDMMSB    Mask = 1 << Mask(buffer.PDMMSB)
	TypeG711ALaw  Mask = 1 << Mask(buffer.G711ALaw)
	TypeG711MuLaw Mask = 1 << Mask(buffer.G711MuLaw)
	TypeFixed16   Mask = 1 << Mask(buffer.Fixed16)
	TypeFixed32   Mask = 1 << Mask(buffer.Fixed32)
	TypeFloat     Mask = 1 << Mask(buffer.Float)

	TypePDM  = TypePDMLSB | TypePDMMSB
	TypeG711 = TypeG711ALaw | TypeG711MuLaw
	TypePCM  = TypeFixed16 | TypeFixed32 | TypeFloat
	TypeAll  = TypePCM | TypeG711 | TypePDM
)

// pcmRates and pdmRates are mapped to consecutive rate bits.
var (
	pcmRates = []int{8000, 12000, 16000, 24000, 32000, 48000, 96000}
	pdmRates = []int{
		256000, 384000, 512000, 576000, 640000, 768000, 960000, 1024000, 1152000,
		1280000, 1536000, 1920000, 2048000, 2304000, 2560000, 3072000, 3840000, 4096000,
	}
)

// Sample rate masks.
const (
	Fs8000  Mask = 1 << iota
	Fs12000
	Fs16000
	Fs24000
	Fs32000
	Fs48000
	Fs96000
)

// Sample rate groups.
var (
	FsPCMAll Mask = (1<<Mask(len(pcmRates)) - 1)
	FsPDMAll Mask = (1<<Mask(len(pdmRates)) - 1) << Mask(len(pcmRates))
	// FsCustom allows rates which don't have a dedicated bit.
	FsCustom Mask = 1 << Mask(len(pcmRates)+len(pdmRates))
	FsAll         = FsPCMAll | FsPDMAll
)

// RateBit returns the mask bit of provided sample rate.
func RateBit(fs int) Mask {
	for i, r := range pcmRates {
		if r == fs {
			return 1 << Mask(i)
		}
	}
	for i, r := range pdmRates {
		if r == fs {
			return 1 << Mask(len(pcmRates)+i)
		}
	}
	return FsCustom
}

// ChannelBit returns the mask bit of provided channel count. Bit n is set
// for n channels.
func ChannelBit(n int) Mask {
	if n < 1 || n > buffer.MaxChannels {
		return 0
	}
	return 1 << Mask(n)
}

// Channel masks.
var (
	Ch1    = ChannelBit(1)
	Ch2    = ChannelBit(2)
	Ch1Or2 = Ch1 | Ch2
	ChAll  = Channels(1, buffer.MaxChannels)
)

// Channels returns mask with bits for channel counts from min to max.
func Channels(min, max int) Mask {
	var m Mask
	for n := min; n <= max; n++ {
		m |= ChannelBit(n)
	}
	return m
}

// Multiplicity describes how many chunks can be connected to a pin set.
// Bit n is set for exactly n chunks; Multiple allows any count above one.
type Multiplicity uint32

// Multiplicities.
const (
	ChunkNone Multiplicity = 1 << iota
	ChunkOne
	ChunkTwo
	ChunkThree
	ChunkFour
	ChunkFive
	ChunkSix
	ChunkSeven
	ChunkEight
	ChunkNine
	ChunkTen
	ChunkMultiple

	ChunkOneMultiple = ChunkOne | ChunkMultiple
)

// Accepts returns true if n chunks can be connected.
func (m Multiplicity) Accepts(n int) bool {
	if n >= 0 && n <= 10 && m&(1<<Multiplicity(n)) != 0 {
		return true
	}
	return n > 1 && m&ChunkMultiple != 0
}

// Max returns the maximal number of chunks. Multiple returns -1.
func (m Multiplicity) Max() int {
	if m&ChunkMultiple != 0 {
		return -1
	}
	for n := 10; n >= 0; n-- {
		if m&(1<<Multiplicity(n)) != 0 {
			return n
		}
	}
	return 0
}

// Prio is a set of process priority levels.
type Prio uint8

// Priority levels.
const (
	PrioLow Prio = 1 << iota
	PrioNormal
	PrioAll = PrioLow | PrioNormal
)

func (p Prio) String() string {
	switch p {
	case PrioLow:
		return "low"
	case PrioNormal:
		return "normal"
	case PrioAll:
		return "low|normal"
	}
	return "none"
}

// Misc flags of algo capabilities.
type Misc uint16

// Misc flags.
const (
	// InitDefault resets configs to template defaults every time the pipe
	// starts playing.
	InitDefault Misc = 1 << iota
	// IgnorePinIn disables input pin validation.
	IgnorePinIn
	// IgnorePinOut disables output pin validation.
	IgnorePinOut
	// OptionalInputs allows less inputs than required.
	OptionalInputs
	// SingleInstance allows only one instance of algo per pipe.
	SingleInstance
)

// PinSet describes pins of one direction.
type PinSet struct {
	Count        Multiplicity
	Names        []string
	Interleaving Mask
	Domain       Mask
	Encoding     Mask
	SampleRate   Mask
	Channels     Mask
}

// Capabilities of an algo template.
type Capabilities struct {
	In          PinSet
	Out         PinSet
	Prio        Prio
	Misc        Misc
	Consistency Consistency
}

// Consistency lists descriptor fields that must be equal across connected
// chunks: among inputs, among outputs and between inputs and outputs.
type Consistency struct {
	In, Out, InOut buffer.Param
}

// Validate returns true if every axis of descriptor is contained in set.
func Validate(d buffer.Descriptor, s PinSet) bool {
	return Check(d, s) == nil
}

// Check returns Incompatible error naming the first mismatching axis.
func Check(d buffer.Descriptor, s PinSet) error {
	const op = "check capability"
	switch {
	case !s.Interleaving.Has(1 << Mask(d.Interleaving)):
		return fault.New(fault.Incompatible, op, buffer.KeyInterleaving, "%v not in %#x", d.Interleaving, s.Interleaving)
	case !s.Domain.Has(1 << Mask(d.Domain)):
		return fault.New(fault.Incompatible, op, buffer.KeyDomain, "%v not in %#x", d.Domain, s.Domain)
	case !s.Encoding.Has(1 << Mask(d.Encoding)):
		return fault.New(fault.Incompatible, op, buffer.KeyEncoding, "%v not in %#x", d.Encoding, s.Encoding)
	case !s.SampleRate.Has(RateBit(d.SampleRate)):
		return fault.New(fault.Incompatible, op, buffer.KeySampleRate, "%d Hz not in %#x", d.SampleRate, s.SampleRate)
	case !s.Channels.Has(ChannelBit(d.Channels)):
		return fault.New(fault.Incompatible, op, buffer.KeyChannels, "%d not in %#x", d.Channels, s.Channels)
	}
	return nil
}

// PinName returns the name of pin i or its index if unnamed.
func (s PinSet) PinName(i int) string {
	if i >= 0 && i < len(s.Names) {
		return s.Names[i]
	}
	return fmt.Sprintf("#%d", i)
}
