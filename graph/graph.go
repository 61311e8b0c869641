// Package graph loads pipe descriptions from yaml files and builds them
// into an engine.
//
// A description lists system ports, chunks and algos. Algo pins refer to
// chunks by name, the position in the list is the pin index:
//
//	ports:
//	  - name: sys_in
//	    direction: in
//	    format: {fs: 16000, nbElements: 160}
//	chunks:
//	  - name: sys_in
//	  - name: out
//	    type: user_sink
//	    format: {fs: 16000, duration: 10}
//	algos:
//	  - template: gain
//	    name: g
//	    config: {gain: -6}
//	    in: [sys_in]
//	    out: [out]
package graph

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"pipelined.dev/audiochain"
	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/chunk"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/sysio"
)

// DefaultFormat is the descriptor that format values of ports and
// chunks are applied to.
var DefaultFormat = buffer.Descriptor{
	Channels:         1,
	SampleRate:       48000,
	ElementsPerFrame: 384,
	FrameCount:       2,
	Encoding:         buffer.Fixed16,
	Interleaving:     buffer.Interleaved,
}

type (
	// Graph is a pipe description.
	Graph struct {
		Name   string  `yaml:"name"`
		Ports  []Port  `yaml:"ports"`
		Chunks []Chunk `yaml:"chunks"`
		Algos  []Algo  `yaml:"algos"`
	}

	// Port is a system port registered by the host.
	Port struct {
		Name      string `yaml:"name"`
		Direction string `yaml:"direction"`
		Depth     int    `yaml:"depth"`
		Format    Values `yaml:"format"`
	}

	// Chunk description. Format is ignored for chunks bound to system
	// ports.
	Chunk struct {
		Name        string `yaml:"name"`
		Type        string `yaml:"type"`
		Pool        string `yaml:"pool"`
		Description string `yaml:"description"`
		Format      Values `yaml:"format"`
	}

	// Algo description. Config values are applied with cold path in the
	// order of the file.
	Algo struct {
		Template          string   `yaml:"template"`
		Name              string   `yaml:"name"`
		Description       string   `yaml:"description"`
		Disabled          bool     `yaml:"disabled"`
		DisableTuning     bool     `yaml:"disableTuning"`
		DefaultCycleCount bool     `yaml:"defaultCycleCount"`
		Config            Values   `yaml:"config"`
		In                []string `yaml:"in"`
		Out               []string `yaml:"out"`
	}

	// Value is a single configuration entry.
	Value struct {
		Key   string
		Value string
	}

	// Values keep configuration entries in the order of the file.
	Values []Value
)

// UnmarshalYAML decodes mapping of scalars preserving its order.
func (v *Values) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected mapping of values", n.Line)
	}
	values := make(Values, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, val := n.Content[i], n.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value of %q must be scalar", val.Line, k.Value)
		}
		values = append(values, Value{Key: k.Value, Value: val.Value})
	}
	*v = values
	return nil
}

// Get returns the last value of key.
func (v Values) Get(key string) (string, bool) {
	for i := len(v) - 1; i >= 0; i-- {
		if v[i].Key == key {
			return v[i].Value, true
		}
	}
	return "", false
}

// Parse decodes graph description. Unknown fields are rejected.
func Parse(r io.Reader) (*Graph, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var g Graph
	if err := dec.Decode(&g); err != nil {
		if err == io.EOF {
			return &g, nil
		}
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return &g, nil
}

// Load reads graph description from file.
func Load(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Format applies values to the default format.
func Format(values Values) (buffer.Descriptor, error) {
	d := DefaultFormat
	for _, v := range values {
		if err := d.Set(v.Key, v.Value); err != nil {
			return buffer.Descriptor{}, err
		}
	}
	return d, d.Validate()
}

// Register adds ports of the graph to the registry.
func (g *Graph) Register(r *sysio.Registry) error {
	for _, p := range g.Ports {
		var dir sysio.Direction
		switch p.Direction {
		case "in":
			dir = sysio.In
		case "out":
			dir = sysio.Out
		default:
			return fault.New(fault.OutOfRange, "register port", p.Name, "direction %q", p.Direction)
		}
		d, err := Format(p.Format)
		if err != nil {
			return fmt.Errorf("port %q: %w", p.Name, err)
		}
		var opts []sysio.PortOption
		if p.Depth > 0 {
			opts = append(opts, sysio.WithDepth(p.Depth))
		}
		if _, err := r.Register(p.Name, dir, d, opts...); err != nil {
			return err
		}
	}
	return nil
}

// Built holds handles of the built graph.
type Built struct {
	Chunks map[string]audiochain.ChunkRef
	Algos  map[string]audiochain.AlgoRef
	// algos in creation order
	order []audiochain.AlgoRef
}

// Build creates chunks and algos of the graph in stopped engine and
// connects them. If any step fails, everything created so far is
// deleted.
func (g *Graph) Build(e *audiochain.Engine) (*Built, error) {
	b := &Built{
		Chunks: make(map[string]audiochain.ChunkRef, len(g.Chunks)),
		Algos:  make(map[string]audiochain.AlgoRef, len(g.Algos)),
	}
	if err := g.build(e, b); err != nil {
		return nil, fault.List{}.Append(err, b.delete(e)).Ret()
	}
	return b, nil
}

func (g *Graph) build(e *audiochain.Engine, b *Built) error {
	for _, c := range g.Chunks {
		ref, err := createChunk(e, c)
		if ref.IsZero() {
			return fmt.Errorf("chunk %q: %w", c.Name, err)
		}
		b.Chunks[c.Name] = ref
		if err != nil {
			return fmt.Errorf("chunk %q: %w", c.Name, err)
		}
	}
	for _, a := range g.Algos {
		ref, err := e.CreateAlgo(a.Template, a.Name, a.flags(), a.Description)
		if err != nil {
			return fmt.Errorf("algo %q: %w", a.Template, err)
		}
		info, err := e.Algo(ref)
		if err != nil {
			return err
		}
		b.Algos[info.Name] = ref
		b.order = append(b.order, ref)
		if err := g.configure(e, ref, info.Name, a); err != nil {
			return err
		}
	}
	return nil
}

func createChunk(e *audiochain.Engine, c Chunk) (audiochain.ChunkRef, error) {
	d, err := Format(c.Format)
	if err != nil {
		return audiochain.ChunkRef{}, err
	}
	ref, err := e.CreateChunk(c.Name, d)
	if err != nil {
		return ref, err
	}
	if c.Description != "" {
		if err := e.SetChunkDescription(ref, c.Description); err != nil {
			return ref, err
		}
	}
	if c.Type != "" {
		if err := e.SetChunkConfig(ref, chunk.KeyKind, c.Type); err != nil {
			return ref, err
		}
	}
	if c.Pool != "" {
		if err := e.SetChunkConfig(ref, chunk.KeyPool, c.Pool); err != nil {
			return ref, err
		}
	}
	return ref, nil
}

// configure applies config of algo and connects its pins. Clamped values
// are not errors.
func (g *Graph) configure(e *audiochain.Engine, ref audiochain.AlgoRef, name string, a Algo) error {
	for _, v := range a.Config {
		if err := e.SetConfig(ref, v.Key, v.Value); err != nil && !fault.IsWarning(err) {
			return fmt.Errorf("algo %q: %w", name, err)
		}
	}
	for pin, c := range a.In {
		if c == "" {
			continue
		}
		cref, err := e.ChunkByName(c)
		if err != nil {
			return fmt.Errorf("algo %q input %d: %w", name, pin, err)
		}
		if err := e.ConnectInput(ref, pin, cref); err != nil {
			return fmt.Errorf("algo %q input %d: %w", name, pin, err)
		}
	}
	for pin, c := range a.Out {
		if c == "" {
			continue
		}
		cref, err := e.ChunkByName(c)
		if err != nil {
			return fmt.Errorf("algo %q output %d: %w", name, pin, err)
		}
		if err := e.ConnectOutput(ref, pin, cref); err != nil {
			return fmt.Errorf("algo %q output %d: %w", name, pin, err)
		}
	}
	return nil
}

func (a Algo) flags() audiochain.CreateFlag {
	var f audiochain.CreateFlag
	if a.Disabled {
		f |= audiochain.CreateDisabled
	}
	if a.DisableTuning {
		f |= audiochain.DisableTuning
	}
	if a.DefaultCycleCount {
		f |= audiochain.DefaultCycleCount
	}
	return f
}

// delete removes algos and chunks in reverse order.
func (b *Built) delete(e *audiochain.Engine) error {
	var errs fault.List
	for i := len(b.order) - 1; i >= 0; i-- {
		errs = errs.Append(e.DeleteAlgo(b.order[i]))
	}
	for _, ref := range b.Chunks {
		errs = errs.Append(e.DeleteChunk(ref))
	}
	b.order = nil
	clear(b.Algos)
	clear(b.Chunks)
	return errs.Ret()
}

// Describe returns description of chunks and algos of the engine. Config
// values are not included.
func Describe(e *audiochain.Engine) *Graph {
	g := Graph{Name: e.Name()}
	for _, c := range e.Chunks() {
		gc := Chunk{Name: c.Name}
		if !c.Kind.IsSystem() {
			gc.Type = c.Kind.String()
			gc.Format = describeFormat(c.Descriptor)
		}
		g.Chunks = append(g.Chunks, gc)
	}
	for _, a := range e.Algos() {
		g.Algos = append(g.Algos, Algo{
			Template:    a.Template,
			Name:        a.Name,
			Description: a.Description,
			Disabled:    a.State == audiochain.Disabled,
			In:          a.In,
			Out:         a.Out,
		})
	}
	return &g
}

func describeFormat(d buffer.Descriptor) Values {
	var values Values
	for _, k := range buffer.Keys() {
		if k == buffer.KeyDuration {
			continue
		}
		v, _ := d.Get(k)
		values = append(values, Value{Key: k, Value: v})
	}
	return values
}

// MarshalYAML encodes values as mapping.
func (v Values) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, kv := range v {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: kv.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: kv.Value},
		)
	}
	return n, nil
}

// Encode writes graph description.
func (g *Graph) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(g); err != nil {
		return err
	}
	return enc.Close()
}
