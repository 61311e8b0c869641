// Package buffer describes the shape and format of audio sample blocks
// exchanged between algos.
package buffer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pipelined.dev/audiochain/fault"
)

type (
	// Domain is a signal domain of the buffer.
	Domain uint8

	// Encoding is a sample encoding of the buffer.
	Encoding uint8

	// Interleaving defines how channels are laid out in memory.
	Interleaving uint8
)

// Domains.
const (
	Time Domain = iota
	Frequency
)

// Encodings. Order matches capability bits.
const (
	PDMLSB Encoding = iota
	PDMMSB
	G711ALaw
	G711MuLaw
	Fixed16
	Fixed32
	Float
)

// Interleaving modes. Order matches capability bits.
const (
	NonInterleaved Interleaving = iota
	Interleaved
)

// Descriptor is the shape and format metadata of audio samples. It's
// immutable once a chunk is built from it.
type Descriptor struct {
	Channels         int
	SampleRate       int
	ElementsPerFrame int // samples per channel in a single frame
	FrameCount       int // frames in a chunk ring
	Domain           Domain
	Encoding         Encoding
	Interleaving     Interleaving
}

var domainNames = map[Domain]string{
	Time:      "time",
	Frequency: "freq",
}

var encodingNames = map[Encoding]string{
	PDMLSB:    "pdm_lsb",
	PDMMSB:    "pdm_msb",
	G711ALaw:  "g711_alaw",
	G711MuLaw: "g711_mulaw",
	Fixed16:   "fixed16",
	Fixed32:   "fixed32",
	Float:     "float",
}

var interleavingNames = map[Interleaving]string{
	NonInterleaved: "non_interleaved",
	Interleaved:    "interleaved",
}

func (d Domain) String() string {
	if s, ok := domainNames[d]; ok {
		return s
	}
	return "unknown"
}

func (e Encoding) String() string {
	if s, ok := encodingNames[e]; ok {
		return s
	}
	return "unknown"
}

func (i Interleaving) String() string {
	if s, ok := interleavingNames[i]; ok {
		return s
	}
	return "unknown"
}

// ParseDomain parses domain name.
func ParseDomain(s string) (Domain, error) {
	for k, v := range domainNames {
		if strings.EqualFold(v, s) {
			return k, nil
		}
	}
	if strings.EqualFold(s, "frequency") {
		return Frequency, nil
	}
	return 0, fault.New(fault.OutOfRange, "parse domain", s, "unknown domain")
}

// ParseEncoding parses encoding name.
func ParseEncoding(s string) (Encoding, error) {
	for k, v := range encodingNames {
		if strings.EqualFold(v, s) {
			return k, nil
		}
	}
	return 0, fault.New(fault.OutOfRange, "parse encoding", s, "unknown encoding")
}

// ParseInterleaving parses interleaving name. Boolean values are accepted.
func ParseInterleaving(s string) (Interleaving, error) {
	for k, v := range interleavingNames {
		if strings.EqualFold(v, s) {
			return k, nil
		}
	}
	if b, err := strconv.ParseBool(s); err == nil {
		if b {
			return Interleaved, nil
		}
		return NonInterleaved, nil
	}
	return 0, fault.New(fault.OutOfRange, "parse interleaving", s, "unknown interleaving")
}

// Width returns the size of a single sample in bytes.
func (e Encoding) Width() int {
	switch e {
	case G711ALaw, G711MuLaw:
		return 1
	case Fixed16:
		return 2
	default:
		return 4
	}
}

// SampleSize returns the size of a single element. Frequency domain
// elements are complex values.
func (d Descriptor) SampleSize() int {
	if d.Domain == Frequency {
		return 2 * d.Encoding.Width()
	}
	return d.Encoding.Width()
}

// FrameSamples returns number of elements in a single frame across all
// channels.
func (d Descriptor) FrameSamples() int {
	return d.ElementsPerFrame * d.Channels
}

// FrameBytes returns the size of a single frame in bytes.
func (d Descriptor) FrameBytes() int {
	return d.FrameSamples() * d.SampleSize()
}

// Bytes returns the size of all frames in bytes.
func (d Descriptor) Bytes() int {
	return d.FrameBytes() * d.FrameCount
}

// Duration returns the duration of a single frame. For frequency domain
// buffers the element count is the FFT size.
func (d Descriptor) Duration() time.Duration {
	if d.SampleRate == 0 {
		return 0
	}
	return time.Duration(int64(d.ElementsPerFrame) * int64(time.Second) / int64(d.SampleRate))
}

// DurationMs returns the frame duration in milliseconds multiplied by
// divisor, the way it's declared in configuration.
func (d Descriptor) DurationMs(divisor int) int {
	if d.SampleRate == 0 {
		return 0
	}
	if divisor <= 0 {
		divisor = 1
	}
	return d.ElementsPerFrame * divisor * 1000 / d.SampleRate
}

// DeriveElementsPerFrame computes frame length for ms duration at sample
// rate fs. Result is truncated.
func DeriveElementsPerFrame(ms, fs, msDivisor int) int {
	if msDivisor <= 0 {
		msDivisor = 1
	}
	return (ms * fs / 1000) / msDivisor
}

// Validate checks that descriptor describes non-empty buffer.
func (d Descriptor) Validate() error {
	const op = "validate buffer"
	switch {
	case d.Channels < 1:
		return fault.New(fault.OutOfRange, op, KeyChannels, "%d channels", d.Channels)
	case d.SampleRate < 1:
		return fault.New(fault.OutOfRange, op, KeySampleRate, "%d Hz", d.SampleRate)
	case d.ElementsPerFrame < 1:
		return fault.New(fault.OutOfRange, op, KeyElements, "%d elements", d.ElementsPerFrame)
	case d.FrameCount < 1:
		return fault.New(fault.OutOfRange, op, KeyFrames, "%d frames", d.FrameCount)
	case d.Encoding > Float:
		return fault.New(fault.OutOfRange, op, KeyEncoding, "%d", d.Encoding)
	case d.Domain > Frequency:
		return fault.New(fault.OutOfRange, op, KeyDomain, "%d", d.Domain)
	case d.Interleaving > Interleaved:
		return fault.New(fault.OutOfRange, op, KeyInterleaving, "%d", d.Interleaving)
	}
	return nil
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%dch %dHz %d elements x %d frames %v %v %v",
		d.Channels, d.SampleRate, d.ElementsPerFrame, d.FrameCount, d.Domain, d.Encoding, d.Interleaving)
}
