package buffer

import (
	"strconv"
	"strings"

	"pipelined.dev/audiochain/fault"
)

// Configuration keys of descriptor fields.
const (
	KeySampleRate   = "fs"
	KeyChannels     = "nbChannels"
	KeyElements     = "nbElements"
	KeyFrames       = "nbFrames"
	KeyDomain       = "timeFreq"
	KeyEncoding     = "bufferType"
	KeyInterleaving = "interleaved"
	KeyDuration     = "duration"
)

// Keys returns all descriptor configuration keys.
func Keys() []string {
	return []string{
		KeySampleRate,
		KeyChannels,
		KeyElements,
		KeyFrames,
		KeyDomain,
		KeyEncoding,
		KeyInterleaving,
		KeyDuration,
	}
}

const (
	// MaxFrames limits the ring size of a chunk.
	MaxFrames = 16
	// MaxChannels is the number of channels capabilities can express.
	MaxChannels = 8
)

// Set parses value and assigns it to the field identified by key. Duration
// is expressed in milliseconds and derives the element count from the
// current sample rate.
func (d *Descriptor) Set(key, value string) error {
	const op = "set buffer"
	value = strings.TrimSpace(value)
	switch key {
	case KeySampleRate, KeyChannels, KeyElements, KeyFrames, KeyDuration:
		v, err := strconv.Atoi(value)
		if err != nil {
			return fault.Wrap(fault.OutOfRange, op, key, err)
		}
		if v < 1 {
			return fault.New(fault.OutOfRange, op, key, "%d must be positive", v)
		}
		switch key {
		case KeySampleRate:
			d.SampleRate = v
		case KeyChannels:
			if v > MaxChannels {
				return fault.New(fault.OutOfRange, op, key, "%d exceeds %d", v, MaxChannels)
			}
			d.Channels = v
		case KeyElements:
			d.ElementsPerFrame = v
		case KeyFrames:
			if v > MaxFrames {
				return fault.New(fault.OutOfRange, op, key, "%d exceeds %d", v, MaxFrames)
			}
			d.FrameCount = v
		case KeyDuration:
			if d.SampleRate == 0 {
				return fault.New(fault.InvalidState, op, key, "sample rate must be set before duration")
			}
			n := DeriveElementsPerFrame(v, d.SampleRate, 1)
			if n < 1 {
				return fault.New(fault.OutOfRange, op, key, "%d ms is shorter than one sample", v)
			}
			d.ElementsPerFrame = n
		}
	case KeyDomain:
		v, err := ParseDomain(value)
		if err != nil {
			return err
		}
		d.Domain = v
	case KeyEncoding:
		v, err := ParseEncoding(value)
		if err != nil {
			return err
		}
		d.Encoding = v
	case KeyInterleaving:
		v, err := ParseInterleaving(value)
		if err != nil {
			return err
		}
		d.Interleaving = v
	default:
		return fault.New(fault.NotFound, op, key, "unknown key")
	}
	return nil
}

// Get returns the string value of the field identified by key.
func (d Descriptor) Get(key string) (string, error) {
	switch key {
	case KeySampleRate:
		return strconv.Itoa(d.SampleRate), nil
	case KeyChannels:
		return strconv.Itoa(d.Channels), nil
	case KeyElements:
		return strconv.Itoa(d.ElementsPerFrame), nil
	case KeyFrames:
		return strconv.Itoa(d.FrameCount), nil
	case KeyDuration:
		return strconv.Itoa(d.DurationMs(1)), nil
	case KeyDomain:
		return d.Domain.String(), nil
	case KeyEncoding:
		return d.Encoding.String(), nil
	case KeyInterleaving:
		return d.Interleaving.String(), nil
	}
	return "", fault.New(fault.NotFound, "get buffer", key, "unknown key")
}

// Param is a set of descriptor fields used to test compatibility of two
// descriptors.
type Param uint16

// Descriptor fields.
const (
	ParamSampleRate Param = 1 << iota
	ParamChannels
	ParamDomain
	ParamInterleaving
	ParamEncoding
	ParamElements
	ParamDuration
	ParamFrames

	// ParamNone doesn't test anything.
	ParamNone Param = 0
	// ParamAll tests every field but frame count.
	ParamAll = ParamSampleRate | ParamChannels | ParamDomain | ParamInterleaving | ParamEncoding | ParamElements | ParamDuration
)

var paramNames = []struct {
	Param
	name string
}{
	{ParamSampleRate, KeySampleRate},
	{ParamChannels, KeyChannels},
	{ParamDomain, KeyDomain},
	{ParamInterleaving, KeyInterleaving},
	{ParamEncoding, KeyEncoding},
	{ParamElements, KeyElements},
	{ParamDuration, KeyDuration},
	{ParamFrames, KeyFrames},
}

func (p Param) String() string {
	var s []string
	for _, n := range paramNames {
		if p&n.Param != 0 {
			s = append(s, n.name)
		}
	}
	return strings.Join(s, "|")
}

// Compatible tests that fields listed in params are equal in both
// descriptors. Incompatible error names the first mismatching field.
func Compatible(a, b Descriptor, params Param) error {
	const op = "compatible"
	mismatch := func(p Param) error {
		return fault.New(fault.Incompatible, op, p.String(), "%v != %v", a, b)
	}
	if params&ParamSampleRate != 0 && a.SampleRate != b.SampleRate {
		return mismatch(ParamSampleRate)
	}
	if params&ParamChannels != 0 && a.Channels != b.Channels {
		return mismatch(ParamChannels)
	}
	if params&ParamDomain != 0 && a.Domain != b.Domain {
		return mismatch(ParamDomain)
	}
	if params&ParamInterleaving != 0 && a.Interleaving != b.Interleaving {
		return mismatch(ParamInterleaving)
	}
	if params&ParamEncoding != 0 && a.Encoding != b.Encoding {
		return mismatch(ParamEncoding)
	}
	if params&ParamElements != 0 && a.ElementsPerFrame != b.ElementsPerFrame {
		return mismatch(ParamElements)
	}
	if params&ParamDuration != 0 && a.Duration() != b.Duration() {
		return mismatch(ParamDuration)
	}
	if params&ParamFrames != 0 && a.FrameCount != b.FrameCount {
		return mismatch(ParamFrames)
	}
	return nil
}
