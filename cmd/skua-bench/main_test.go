package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skua-js/skua/pkg/config"
)

func TestRunLoadsSuite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.js"), []byte(`
var results = [];
function Benchmark(name, fn) { results.push([name, fn()]); }
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fib.js"), []byte(`
function fib(n) { return n < 2 ? n : fib(n - 1) + fib(n - 2); }
Benchmark("fib", () => fib(15));
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.js"), []byte(`
load("base.js");
load("fib.js");
for (const [name, score] of results) print(name + ": " + score);
`), 0o644))

	var out bytes.Buffer
	times, err := run(config.Default(), dir, "run.js", 2, &out, &out, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Len(t, times, 2)
	assert.Equal(t, "fib: 610\nfib: 610\n", out.String())
}

func TestRunReportsLoadErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.js"), []byte(`load("missing.js");`), 0o644))
	_, err := run(config.Default(), dir, "run.js", 1, &bytes.Buffer{}, &bytes.Buffer{}, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.js")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.js"), []byte(`load("bad.js");`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.js"), []byte(`throw new Error("inside load")`), 0o644))
	_, err = run(config.Default(), dir, "run.js", 1, &bytes.Buffer{}, &bytes.Buffer{}, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inside load")
}
