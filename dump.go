package audiochain

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"

	"pipelined.dev/audiochain/metric"
	"pipelined.dev/audiochain/param"
)

// DumpAlgos writes instances with their state and pins.
func (e *Engine) DumpAlgos(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tTEMPLATE\tSTATE\tPRIO\tIN\tOUT")
	for _, a := range e.Algos() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%v\t%v\t%s\t%s\n",
			a.Index, a.Name, a.Template, a.State, a.Prio,
			strings.Join(a.In, ","), strings.Join(a.Out, ","))
	}
	return tw.Flush()
}

// DumpTemplates writes registered templates and their params.
func (e *Engine) DumpTemplates(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEMPLATE\tKIND\tPARAM\tTYPE\tRANGE\tDEFAULT\tFLAGS")
	for _, d := range e.registry.Descriptors() {
		fmt.Fprintf(tw, "%s\t\t\t\t\t\t%s\n", d.Name, d.Description)
		for _, set := range []struct {
			kind string
			t    *param.Template
		}{
			{StaticParam, d.Static},
			{DynamicParam, d.Dynamic},
			{ControlParam, d.Control},
		} {
			for _, f := range set.t.Fields() {
				fmt.Fprintf(tw, "\t%s\t%s\t%v\t[%v..%v]\t%s\t%v\n",
					set.kind, f.Name, f.Type, f.Min, f.Max, f.Default, f.Flags)
			}
		}
	}
	return tw.Flush()
}

// DumpChunks writes chunks with their descriptors and connections.
func (e *Engine) DumpChunks(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tDESCRIPTOR\tWRITER\tREADERS")
	for _, c := range e.Chunks() {
		fmt.Fprintf(tw, "%s\t%v\t%v\t%s\t%s\n",
			c.Name, c.Kind, c.Descriptor, c.Writer, strings.Join(c.Readers, ","))
	}
	return tw.Flush()
}

// DumpCycles writes cycle stats if meter provides them.
func (e *Engine) DumpCycles(w io.Writer) error {
	r, ok := e.meter.(interface{ Stats() []metric.Stats })
	if !ok {
		_, err := fmt.Fprintln(w, "cycles are not measured")
		return err
	}
	for _, s := range r.Stats() {
		if _, err := fmt.Fprintln(w, s); err != nil {
			return err
		}
	}
	return nil
}

// DumpPools writes memory pool stats.
func (e *Engine) DumpPools(w io.Writer) error {
	for _, s := range e.pools.Stats() {
		if _, err := fmt.Fprintln(w, s); err != nil {
			return err
		}
	}
	return nil
}

// DumpConfig writes params of algo. Raw config structures are written as
// well if raw is set.
func (e *Engine) DumpConfig(w io.Writer, a AlgoRef, raw bool) error {
	params, err := e.Params(a)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range params {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Template, p.Group, p.Name, p.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !raw {
		return nil
	}
	n, err := e.tuned("dump config", a)
	if err != nil {
		return err
	}
	defer n.mu.Unlock()
	spew.Fdump(w, n.static, n.dynamic, n.control)
	return nil
}
