package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skua-js/skua/pkg/config"
	"github.com/skua-js/skua/pkg/driver"
	"github.com/skua-js/skua/pkg/errors"
)

func TestNeedsMore(t *testing.T) {
	tests := []struct {
		input string
		more  bool
	}{
		{"1 + 1\n", false},
		{"function f() {\n", true},
		{"let s = `multi\n", true},
		{"[1, 2,\n", true},
		{"let = ;\n", false},
		{"/* open comment\n", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.more, needsMore(tt.input, false), tt.input)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, exitSoftware, exitCode([]errors.SkuaError{&errors.RuntimeError{Msg: "x"}}))
	assert.Equal(t, exitDataErr, exitCode([]errors.SkuaError{&errors.SyntaxError{Msg: "x"}}))
}

func TestRepl(t *testing.T) {
	var out, errOut bytes.Buffer
	cfg := config.Default()
	e, err := driver.NewWithOptions(cfg, driver.Options{Stdout: &out, Stderr: &errOut})
	require.NoError(t, err)
	c := &cli{engine: e, cfg: cfg}

	in := strings.NewReader("let x = 20;\nfunction add(a) {\n  return a + x;\n}\nadd(22)\n\nnull.boom\n'after'\n")
	c.repl(in, &out)

	got := out.String()
	assert.Contains(t, got, "... ")
	assert.Contains(t, got, "42\n")
	assert.Contains(t, got, "'after'\n")
	assert.Contains(t, errOut.String(), "TypeError")
}
