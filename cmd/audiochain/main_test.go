package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiochain/sysio/wav"
)

const (
	toneGraph = `
name: tone
ports:
  - name: speaker
    direction: out
    format: {fs: 16000, nbElements: 160}
chunks:
  - name: speaker
algos:
  - template: generator
    config: {frequency: 1000}
    out: [speaker]
`
	gainGraph = `
name: gain
ports:
  - name: mic
    direction: in
    format: {fs: 16000, nbElements: 160}
  - name: speaker
    direction: out
    format: {fs: 16000, nbElements: 160}
chunks:
  - name: mic
  - name: speaker
algos:
  - template: gain
    config: {gain: -6}
    in: [mic]
    out: [speaker]
`
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCommands(t *testing.T) {
	root := rootCommand()
	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"run", "templates", "params"})
}

func TestTemplates(t *testing.T) {
	out, err := execute(t, "templates")
	require.NoError(t, err)
	for _, name := range []string{"delay", "gain", "generator", "mixer", "repeat", "rms"} {
		assert.Contains(t, out, name)
	}
}

func TestParams(t *testing.T) {
	out, err := execute(t, "params", "gain")
	require.NoError(t, err)
	assert.Contains(t, out, "mute")

	out, err = execute(t, "params", "--raw", "delay")
	require.NoError(t, err)
	assert.Contains(t, out, "delay.Static")

	_, err = execute(t, "params", "reverb")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	tone := filepath.Join(dir, "tone.wav")
	out, err := execute(t, "run", writeFile(t, "tone.yaml", toneGraph), "--frames", "4", "--out", tone)
	require.NoError(t, err)
	assert.Contains(t, out, "processed 4 frames, saved 4")
	assert.Contains(t, out, "audio duration 40ms")

	src, err := wav.Open(tone)
	require.NoError(t, err)
	assert.Equal(t, 16000, src.Descriptor(160).SampleRate)
	require.NoError(t, src.Close())

	quiet := filepath.Join(dir, "quiet.wav")
	out, err = execute(t, "run", writeFile(t, "gain.yaml", gainGraph), "--in", tone, "--out", quiet, "--dump")
	require.NoError(t, err)
	assert.Contains(t, out, "processed 4 frames, saved 4")
	assert.Contains(t, out, "gain_0")
	_, err = os.Stat(quiet)
	assert.NoError(t, err)
}

func TestRunErrors(t *testing.T) {
	graph := writeFile(t, "tone.yaml", toneGraph)
	tests := []struct {
		description string
		args        []string
	}{
		{
			description: "no input and no limit",
			args:        []string{"run", graph},
		},
		{
			description: "missing graph",
			args:        []string{"run", filepath.Join(t.TempDir(), "none.yaml"), "--frames", "1"},
		},
		{
			description: "no input port",
			args:        []string{"run", graph, "--in", "tone.wav"},
		},
		{
			description: "unknown output port",
			args:        []string{"run", graph, "--frames", "1", "--out", filepath.Join(t.TempDir(), "x.wav"), "--out-port", "mic"},
		},
		{
			description: "bad settings",
			args:        []string{"--settings", writeFile(t, "settings.yaml", "clampPolicy: sometimes\n"), "templates"},
		},
	}
	for _, test := range tests {
		_, err := execute(t, test.args...)
		assert.Error(t, err, test.description)
	}
}
