// Package wav connects wav files to system ports: Source feeds an input
// port from a file and Sink drains an output port into a file.
package wav

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/signal"
	"pipelined.dev/audiochain/sysio"
)

// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
var ErrUnsupportedBitDepth = errors.New("only 16 and 32 bit depth is supported")

const pcmFormat = 1

type (
	// Source reads frames from wav file.
	Source struct {
		path    string
		file    *os.File
		decoder *wav.Decoder
		ints    *audio.IntBuffer
		floats  signal.Float64
		frame   []byte
	}

	// Sink saves frames to wav file.
	Sink struct {
		path     string
		bitDepth int
		file     *os.File
		encoder  *wav.Encoder
		ints     *audio.IntBuffer
		floats   signal.Float64
		frame    []byte
	}
)

func checkBitDepth(bitDepth int) error {
	if bitDepth != 16 && bitDepth != 32 {
		return fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	return nil
}

// Open opens wav file for reading.
func Open(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("wav %q is not valid", path)
	}
	if err := checkBitDepth(int(decoder.BitDepth)); err != nil {
		file.Close()
		return nil, err
	}
	return &Source{
		path:    path,
		file:    file,
		decoder: decoder,
	}, nil
}

// Descriptor returns descriptor of frames with provided number of elements.
func (s *Source) Descriptor(elements int) buffer.Descriptor {
	enc := buffer.Fixed16
	if s.decoder.BitDepth == 32 {
		enc = buffer.Fixed32
	}
	return buffer.Descriptor{
		Channels:         s.decoder.Format().NumChannels,
		SampleRate:       int(s.decoder.SampleRate),
		ElementsPerFrame: elements,
		FrameCount:       1,
		Encoding:         enc,
	}
}

// Feed reads a single frame from file and writes it to input port. The
// last frame is padded with silence. io.EOF is returned when file has no
// more samples.
func (s *Source) Feed(p *sysio.Port) error {
	d := p.Descriptor()
	if s.ints == nil {
		s.ints = &audio.IntBuffer{
			Format:         s.decoder.Format(),
			Data:           make([]int, d.ElementsPerFrame*d.Channels),
			SourceBitDepth: int(s.decoder.BitDepth),
		}
		s.floats = signal.ForDescriptor(d)
		s.frame = make([]byte, d.FrameBytes())
	}
	read, err := s.decoder.PCMBuffer(s.ints)
	if err != nil {
		return err
	}
	if read == 0 {
		return io.EOF
	}
	scale := float64(int(1) << (s.decoder.BitDepth - 1))
	s.floats.Zero()
	for i := 0; i < read; i++ {
		c := i % d.Channels
		s.floats[c][i/d.Channels] = float64(s.ints.Data[i]) / scale
	}
	if err := signal.Encode(d, s.floats, s.frame); err != nil {
		return err
	}
	return p.Write(s.frame)
}

// Close closes the file.
func (s *Source) Close() error {
	return s.file.Close()
}

// Create creates wav file for frames of descriptor.
func Create(path string, d buffer.Descriptor, bitDepth int) (*Sink, error) {
	if err := checkBitDepth(bitDepth); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Sink{
		path:     path,
		bitDepth: bitDepth,
		file:     f,
		encoder:  wav.NewEncoder(f, d.SampleRate, bitDepth, d.Channels, pcmFormat),
		ints: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: d.Channels,
				SampleRate:  d.SampleRate,
			},
			Data:           make([]int, d.ElementsPerFrame*d.Channels),
			SourceBitDepth: bitDepth,
		},
		floats: signal.ForDescriptor(d),
		frame:  make([]byte, d.FrameBytes()),
	}, nil
}

// Drain writes all frames buffered in output port to file and returns
// their number.
func (s *Sink) Drain(p *sysio.Port) (int, error) {
	d := p.Descriptor()
	scale := float64(int(1)<<(s.bitDepth-1) - 1)
	frames := 0
	for p.Buffered() > 0 {
		if err := p.Read(s.frame); err != nil {
			return frames, err
		}
		if err := signal.Decode(d, s.frame, s.floats); err != nil {
			return frames, err
		}
		for i := range s.ints.Data {
			c := i % d.Channels
			s.ints.Data[i] = int(s.floats[c][i/d.Channels] * scale)
		}
		if err := s.encoder.Write(s.ints); err != nil {
			return frames, err
		}
		frames++
	}
	return frames, nil
}

// Close flushes encoder and closes the file.
func (s *Sink) Close() error {
	if err := s.encoder.Close(); err != nil {
		return err
	}
	return s.file.Close()
}
