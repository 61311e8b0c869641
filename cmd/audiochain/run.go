package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	ossignal "os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"pipelined.dev/audiochain"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/graph"
	"pipelined.dev/audiochain/metric/prom"
	"pipelined.dev/audiochain/signal"
	"pipelined.dev/audiochain/sysio"
	"pipelined.dev/audiochain/sysio/wav"
)

type runFlags struct {
	in       string
	out      string
	inPort   string
	outPort  string
	frames   int
	bitDepth int
	listen   string
	dump     bool
}

func runCommand(env *environment) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <graph.yaml>",
		Short: "Process wav file with pipe described in graph file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.in == "" && flags.frames == 0 {
				return errors.New("either --in or --frames must be set")
			}
			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, cmd.OutOrStdout(), env, args[0], flags)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&flags.in, "in", "i", "", "wav file fed to input port")
	fs.StringVarP(&flags.out, "out", "o", "", "wav file to save output port")
	fs.StringVar(&flags.inPort, "in-port", "", "input port name, first input port by default")
	fs.StringVar(&flags.outPort, "out-port", "", "output port name, first output port by default")
	fs.IntVarP(&flags.frames, "frames", "n", 0, "number of frames to process, 0 until input ends")
	fs.IntVar(&flags.bitDepth, "bit-depth", 16, "bit depth of output file")
	fs.StringVar(&flags.listen, "listen", "", "address to serve prometheus metrics")
	fs.BoolVar(&flags.dump, "dump", false, "dump pipe state after processing")
	return cmd
}

// session holds resources of a single run.
type session struct {
	engine *audiochain.Engine
	source *wav.Source
	sink   *wav.Sink
	in     *sysio.Port
	out    *sysio.Port
}

func run(ctx context.Context, w io.Writer, env *environment, path string, flags runFlags) (err error) {
	g, err := graph.Load(path)
	if err != nil {
		return err
	}
	ports := sysio.NewRegistry()
	if err := g.Register(ports); err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	meter, err := prom.New(registry, env.settings.FramePeriod)
	if err != nil {
		return err
	}
	logger := env.logger.WithField("graph", g.Name)
	e, err := env.engine(
		audiochain.WithName(g.Name),
		audiochain.WithLogger(logger),
		audiochain.WithSystemIO(ports),
		audiochain.WithMeter(meter),
		audiochain.WithWarningCallback(func(subject string, err error) {
			logger.WithField("subject", subject).Warn(err)
		}),
	)
	if err != nil {
		return err
	}
	if _, err := g.Build(e); err != nil {
		return err
	}

	s := session{engine: e}
	defer func() {
		if cerr := s.close(); err == nil {
			err = cerr
		}
	}()
	if err := s.open(ports, flags); err != nil {
		return err
	}

	if flags.listen != "" {
		srv := &http.Server{
			Addr:              flags.listen,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	if err := e.Play(ctx, audiochain.Start); err != nil {
		if !fault.IsWarning(err) {
			return err
		}
		logger.Warn(err)
	}
	frames, err := s.process(ctx, flags.frames)
	if stopErr := e.Play(context.Background(), audiochain.Stop); err == nil {
		err = stopErr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "processed %d frames, saved %d\n", frames.processed, frames.saved)
	if d, ok := s.duration(frames.processed); ok {
		fmt.Fprintf(w, "audio duration %v\n", d)
	}
	if flags.dump {
		return dump(w, e)
	}
	return nil
}

// open binds wav files to ports.
func (s *session) open(ports *sysio.Registry, flags runFlags) error {
	var err error
	if flags.in != "" {
		if s.in, err = lookupPort(ports, flags.inPort, sysio.In); err != nil {
			return err
		}
		if s.source, err = wav.Open(flags.in); err != nil {
			return err
		}
	}
	if flags.out != "" {
		if s.out, err = lookupPort(ports, flags.outPort, sysio.Out); err != nil {
			return err
		}
		if s.sink, err = wav.Create(flags.out, s.out.Descriptor(), flags.bitDepth); err != nil {
			return err
		}
	}
	return nil
}

type counters struct {
	processed int
	saved     int
}

// process runs cycles until input ends or limit is reached. Outputs are
// moved to ports at the beginning of a cycle, so an extra cycle flushes
// the last frame.
func (s *session) process(ctx context.Context, limit int) (counters, error) {
	var c counters
	for limit == 0 || c.processed < limit {
		if ctx.Err() != nil {
			break
		}
		if s.source != nil {
			err := s.source.Feed(s.in)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return c, err
			}
		}
		if err := s.cycle(ctx, &c); err != nil {
			return c, err
		}
		c.processed++
	}
	return c, s.cycle(ctx, &c)
}

func (s *session) cycle(ctx context.Context, c *counters) error {
	if err := s.engine.Cycle(ctx); err != nil {
		return err
	}
	if s.sink == nil {
		return nil
	}
	n, err := s.sink.Drain(s.out)
	c.saved += n
	return err
}

// duration returns audio duration of processed frames measured on the
// input port, or on the output port if there is no input.
func (s *session) duration(frames int) (time.Duration, bool) {
	p := s.in
	if p == nil {
		p = s.out
	}
	if p == nil {
		return 0, false
	}
	d := p.Descriptor()
	return signal.DurationOf(d.SampleRate, int64(frames*d.ElementsPerFrame)), true
}

func (s *session) close() error {
	var err error
	if s.source != nil {
		err = s.source.Close()
	}
	if s.sink != nil {
		if cerr := s.sink.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// lookupPort returns port by name or the first port of direction.
func lookupPort(ports *sysio.Registry, name string, dir sysio.Direction) (*sysio.Port, error) {
	if name != "" {
		p, ok := ports.Lookup(name)
		if !ok || p.Direction() != dir {
			return nil, fmt.Errorf("no %v port %q", dir, name)
		}
		return p, nil
	}
	for _, p := range ports.Ports() {
		if p.Direction() == dir {
			return p, nil
		}
	}
	return nil, fmt.Errorf("graph has no %v ports", dir)
}

func dump(w io.Writer, e *audiochain.Engine) error {
	for _, fn := range []func(io.Writer) error{
		e.DumpAlgos,
		e.DumpChunks,
		e.DumpPools,
	} {
		if err := fn(w); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	return nil
}
