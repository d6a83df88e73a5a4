package driver

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skua-js/skua/pkg/errors"
	"github.com/skua-js/skua/pkg/vm"
)

// Expectation represents the expected outcome of a script.
type Expectation struct {
	ResultType string // "value", "runtime_error", "compile_error"
	Value      string // Expected value or error message substring
}

var expectRegex = regexp.MustCompile(`^//\s*(expect(?:_runtime_error|_compile_error)?):\s*(.*)`)

// parseExpectation extracts the expectation from the script's comments.
// Looks for lines like:
//
//	// expect: value
//	// expect_runtime_error: message
//	// expect_compile_error: message
func parseExpectation(content string) (*Expectation, error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		m := expectRegex.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		exp := &Expectation{Value: strings.TrimSpace(m[2])}
		switch m[1] {
		case "expect":
			exp.ResultType = "value"
		case "expect_runtime_error":
			exp.ResultType = "runtime_error"
		case "expect_compile_error":
			exp.ResultType = "compile_error"
		}
		return exp, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading script content: %w", err)
	}
	return nil, fmt.Errorf("no expectation comment found (e.g., // expect: value)")
}

// scriptResult renders the outcome of a script. Scripts that finish
// asynchronously leave their answer in a global named result, which is
// read after the job queue drains.
func scriptResult(t *testing.T, e *Engine, completion vm.Value) string {
	t.Helper()
	val := completion
	g := e.VM().Realm().GlobalObject
	if ok, err := g.HasProperty(e.VM(), vm.StrKey("result")); err == nil && ok {
		r, err := e.Global("result")
		require.NoError(t, err)
		val = r
	}
	if val.IsString() {
		return val.AsString().String()
	}
	return e.Display(val)
}

func joinErrors(errs []errors.SkuaError) string {
	var b strings.Builder
	for _, err := range errs {
		b.WriteString(err.Kind() + "Error: " + err.Message() + "\n")
	}
	return b.String()
}

func TestScripts(t *testing.T) {
	root := filepath.Join("testdata", "scripts")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".js" {
			return err
		}
		name, _ := filepath.Rel(root, path)
		t.Run(filepath.ToSlash(name), func(t *testing.T) {
			content, err := os.ReadFile(path)
			require.NoError(t, err)
			exp, err := parseExpectation(string(content))
			if err != nil {
				t.Skipf("%s: %v", path, err)
			}

			e, err := NewWithOptions(nil, Options{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
			require.NoError(t, err)
			c := e.ParseAndRun(string(content), path)

			if len(c.Errors) > 0 {
				require.Equal(t, "compile_error", exp.ResultType, "unexpected compile errors:\n%s", joinErrors(c.Errors))
				assert.Contains(t, joinErrors(c.Errors), exp.Value)
				return
			}
			require.NotEqual(t, "compile_error", exp.ResultType, "expected compile error containing %q", exp.Value)

			var runtimeErrs []string
			if c.Kind == Throw {
				runtimeErrs = append(runtimeErrs, vm.DescribeThrown(c.Value))
			}
			if err := e.DrainJobQueue(); err != nil {
				runtimeErrs = append(runtimeErrs, err.Error())
			}

			switch exp.ResultType {
			case "value":
				require.Empty(t, runtimeErrs, "expected value %q", exp.Value)
				assert.Equal(t, exp.Value, scriptResult(t, e, c.Value))
			case "runtime_error":
				require.NotEmpty(t, runtimeErrs, "expected runtime error containing %q", exp.Value)
				assert.Contains(t, strings.Join(runtimeErrs, "\n"), exp.Value)
			}
		})
		return nil
	})
	require.NoError(t, err)
}
