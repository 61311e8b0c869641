// Package signal converts chunk frames to float samples and back. It
// allows to:
//   - decode any supported encoding and interleaving to non-interleaved float64
//   - encode float64 samples to the frame layout of a buffer descriptor
package signal

import (
	"encoding/binary"
	"math"
	"math/bits"
	"time"

	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/fault"
)

// Float64 is a non-interleaved float64 signal.
type Float64 [][]float64

// DurationOf returns time duration of passed samples for this sample rate.
func DurationOf(sampleRate int, samples int64) time.Duration {
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// EmptyFloat64 returns an empty buffer of specified dimensions.
func EmptyFloat64(numChannels int, bufferSize int) Float64 {
	result := make([][]float64, numChannels)
	for i := range result {
		result[i] = make([]float64, bufferSize)
	}
	return result
}

// ForDescriptor returns an empty buffer that fits one frame of descriptor.
// Frequency domain frames hold interleaved real and imaginary parts.
func ForDescriptor(d buffer.Descriptor) Float64 {
	return EmptyFloat64(d.Channels, valuesPerChannel(d))
}

// NumChannels returns number of channels in this sample slice
func (floats Float64) NumChannels() int {
	return len(floats)
}

// Size returns number of samples in single block in this sample slice
func (floats Float64) Size() int {
	if floats.NumChannels() == 0 {
		return 0
	}
	return len(floats[0])
}

// Zero sets all samples to zero.
func (floats Float64) Zero() {
	for i := range floats {
		clear(floats[i])
	}
}

func valuesPerChannel(d buffer.Descriptor) int {
	if d.Domain == buffer.Frequency {
		return 2 * d.ElementsPerFrame
	}
	return d.ElementsPerFrame
}

// offset returns the index of sample pos of channel c in the frame.
func offset(d buffer.Descriptor, c, pos int) int {
	if d.Interleaving == buffer.Interleaved {
		return pos*d.Channels + c
	}
	return c*valuesPerChannel(d) + pos
}

func checkSize(op string, d buffer.Descriptor, frame []byte, floats Float64) error {
	if len(frame) < d.FrameBytes() {
		return fault.New(fault.Incompatible, op, d.Encoding.String(), "frame of %d bytes, need %d", len(frame), d.FrameBytes())
	}
	if floats.NumChannels() < d.Channels || floats.Size() < valuesPerChannel(d) {
		return fault.New(fault.Incompatible, op, d.Encoding.String(), "buffer %dx%d, need %dx%d", floats.NumChannels(), floats.Size(), d.Channels, valuesPerChannel(d))
	}
	return nil
}

// Decode converts frame bytes to float samples in range [-1, 1].
func Decode(d buffer.Descriptor, frame []byte, dst Float64) error {
	if err := checkSize("decode", d, frame, dst); err != nil {
		return err
	}
	w := d.Encoding.Width()
	n := valuesPerChannel(d)
	for c := 0; c < d.Channels; c++ {
		for i := 0; i < n; i++ {
			b := frame[offset(d, c, i)*w:]
			dst[c][i] = decodeSample(d.Encoding, b)
		}
	}
	return nil
}

// Encode converts float samples to frame bytes. Samples out of range
// [-1, 1] are saturated.
func Encode(d buffer.Descriptor, src Float64, frame []byte) error {
	if err := checkSize("encode", d, frame, src); err != nil {
		return err
	}
	w := d.Encoding.Width()
	n := valuesPerChannel(d)
	for c := 0; c < d.Channels; c++ {
		for i := 0; i < n; i++ {
			b := frame[offset(d, c, i)*w:]
			encodeSample(d.Encoding, src[c][i], b)
		}
	}
	return nil
}

func decodeSample(e buffer.Encoding, b []byte) float64 {
	switch e {
	case buffer.Fixed16:
		return float64(int16(binary.LittleEndian.Uint16(b))) / (math.MaxInt16 + 1)
	case buffer.Fixed32:
		return float64(int32(binary.LittleEndian.Uint32(b))) / (math.MaxInt32 + 1)
	case buffer.Float:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case buffer.G711ALaw:
		return float64(ALawDecode(b[0])) / (math.MaxInt16 + 1)
	case buffer.G711MuLaw:
		return float64(MuLawDecode(b[0])) / (math.MaxInt16 + 1)
	}
	// PDM words carry density of ones.
	return float64(bits.OnesCount32(binary.LittleEndian.Uint32(b)))/16 - 1
}

func encodeSample(e buffer.Encoding, v float64, b []byte) {
	v = saturate(v)
	switch e {
	case buffer.Fixed16:
		binary.LittleEndian.PutUint16(b, uint16(int16(v*math.MaxInt16)))
	case buffer.Fixed32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v*math.MaxInt32)))
	case buffer.Float:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case buffer.G711ALaw:
		b[0] = ALawEncode(int16(v * math.MaxInt16))
	case buffer.G711MuLaw:
		b[0] = MuLawEncode(int16(v * math.MaxInt16))
	default:
		ones := int(math.Round((v + 1) * 16))
		var word uint32
		for i := 0; i < ones; i++ {
			word |= 1 << i
		}
		binary.LittleEndian.PutUint32(b, word)
	}
}

func saturate(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
