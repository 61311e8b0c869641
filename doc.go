/*
Package audiochain builds and schedules real-time audio graphs.

Concept

A graph consists of algos and chunks. Algo is an instance of a registered
template that transforms audio; chunk is a named ring of frames that
connects an output pin of one algo to input pins of others:

    Chunk - a ring buffer of frames with a single writer;
    Algo - a node with static, dynamic and control configs;
    Engine - the owner of the graph, its scheduler and tuning protocol.

Chunks named after host system ports are bound to them and exchange frames
with the host every cycle. Any other chunk is allocated from a memory pool.

Building

Graph is built while engine is not playing:

    e, err := audiochain.New(
        audiochain.WithRegistry(registry),
        audiochain.WithSystemIO(ports),
    )
    in, err := e.CreateChunk("mic", buffer.Descriptor{})
    out, err := e.CreateChunk("speaker", buffer.Descriptor{})
    gain, err := e.CreateAlgo("gain", "volume", 0, "")
    err = e.ConnectInput(gain, 0, in)
    err = e.ConnectOutput(gain, 0, out)

Every connection is validated against capability masks of the template.
A chunk accepts only one writer.

Playing

Play(ctx, Start) allocates pending chunks, sorts algos in dependency order
and initializes them. Once playing, the host either calls Cycle for every
frame or calls Run, which executes every tier in its own goroutine:

    DataInOut - moves frames between system ports and chunks;
    Process - processes algos of normal priority in dependency order;
    ProcessLowLevel - processes algos of low priority;
    Control - publishes results of processed algos.

Play(ctx, Stop) is honored at tier cycle boundaries.

Tuning

While engine is stopped, SetConfig updates live configs. While engine is
playing, SetConfig stages values and RequestUpdate schedules their commit
at the next process slot of the algo. Dynamic config is applied without
reinit, static config reinitializes the algo; the result is delivered to
the update callback.
*/
package audiochain
