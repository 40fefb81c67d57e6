package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swizzle/internal/compiler"
	"github.com/roach88/swizzle/internal/ir"
)

// writeSpec writes a CUE file into dir and returns its path.
func writeSpec(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCompileValidSpecs(t *testing.T) {
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	out, _, err := execute(t, cmd, specsDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled 4 class(es), 6 method(s), 1 intercept(s)")
	assert.Contains(t, out, "Base < (root): 4 method(s)")
	assert.Contains(t, out, "Derived < Base: 0 method(s)")
	assert.Contains(t, out, "Chaining < Base: 1 method(s)")
	assert.Contains(t, out, "Overriding < Base: 1 method(s)")
	assert.Contains(t, out, "Base.greet ↔ loggedGreet")
	assert.Regexp(t, `Program hash: [0-9a-f]{64}\n`, out)
}

func TestCompileValidSpecsJSON(t *testing.T) {
	cmd := NewCompileCommand(&RootOptions{Format: "json"})
	out, _, err := execute(t, cmd, specsDir)
	require.NoError(t, err)

	resp, data := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, data["program_hash"], 64)

	program := data["program"].(map[string]any)
	assert.Len(t, program["classes"], 4)
	assert.Len(t, program["intercepts"], 1)
}

func TestCompileSingleFile(t *testing.T) {
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	out, _, err := execute(t, cmd, greetingSpec)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled 4 class(es), 6 method(s), 0 intercept(s)")
	assert.NotContains(t, out, "Intercepts:")
}

func TestCompileOutputToFile(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "compiled.json")

	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	out, _, err := execute(t, cmd, specsDir, "--output", outputFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote IR to "+outputFile)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	var result struct {
		ProgramHash string     `json:"program_hash"`
		Program     ir.Program `json:"program"`
	}
	require.NoError(t, json.Unmarshal(data, &result))

	want, err := ir.ProgramHash(result.Program)
	require.NoError(t, err)
	assert.Equal(t, want, result.ProgramHash, "written IR round-trips to the same hash")
	require.NotNil(t, result.Program.Class("Chaining"))
	assert.Equal(t, "Base", result.Program.Class("Chaining").Super)
}

func TestCompileOutputKeepsEmptyArgs(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "spec.cue", `
class: Base: method: {
	greet: body: [{return: "hi"}]
	forward: body: [{send: "greet"}, {return: "${result}"}]
	bare: body: [{send: "greet", args: []}, {return: "${result}"}]
}
`)
	outputFile := filepath.Join(t.TempDir(), "compiled.json")

	cmd := NewCompileCommand(&RootOptions{Format: "json"})
	_, _, err := execute(t, cmd, dir, "--output", outputFile)
	require.NoError(t, err)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.NotNil(t, result.Program)

	base := result.Program.Class("Base")
	require.NotNil(t, base)
	assert.Nil(t, base.Method("forward").Body[0].Args)
	assert.Equal(t, ir.IRArray{}, base.Method("bare").Body[0].Args)

	want, err := ir.ProgramHash(*result.Program)
	require.NoError(t, err)
	assert.Equal(t, want, result.ProgramHash)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name     string
		spec     string // empty: use the path as is
		path     string
		wantCode string
		wantText string
	}{
		{
			name:     "not_found",
			path:     "/nonexistent/specs",
			wantCode: ErrCodeNotFound,
			wantText: "specs path not found",
		},
		{
			name:     "syntax_error",
			spec:     "class: Base: method: greet: body: [{return: \"x\"\n",
			wantCode: ErrCodeLoadFailed,
		},
		{
			name:     "missing_return",
			spec:     `class: Base: method: greet: body: [{log: "hi"}]`,
			wantCode: "E103",
			wantText: "return",
		},
		{
			name:     "unknown_superclass",
			spec:     `class: Derived: super: "Missing"`,
			wantCode: "E110",
		},
		{
			name: "unresolved_intercept",
			spec: `
class: Base: method: greet: body: [{return: "hi"}]
intercept: [{class: "Base", original: "greet", wrapper: "loggedGreet"}]
`,
			wantCode: "E113",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if tt.spec != "" {
				dir := t.TempDir()
				writeSpec(t, dir, "spec.cue", tt.spec)
				path = dir
			}

			cmd := NewCompileCommand(&RootOptions{Format: "json"})
			out, _, err := execute(t, cmd, path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			resp, _ := decode(t, out)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code, "message: %s", resp.Error.Message)
			if tt.wantText != "" {
				assert.Contains(t, resp.Error.Message, tt.wantText)
			}
		})
	}
}

func TestCompileErrorsText(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "spec.cue", `
class: A: super: "B"
class: B: super: "A"
`)

	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	out, _, err := execute(t, cmd, dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ Compilation failed")
	assert.Contains(t, out, "E111")
}

func TestCompileEmptyDirectory(t *testing.T) {
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	out, _, err := execute(t, cmd, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNoFiles)
}

func TestCalculateStats(t *testing.T) {
	prog := &ir.Program{
		Classes: []ir.ClassSpec{
			{Name: "Base", Methods: []ir.MethodSpec{{Selector: "a"}, {Selector: "b"}}},
			{Name: "Derived", Super: "Base", Methods: []ir.MethodSpec{{Selector: "a"}}},
		},
		Intercepts: []ir.InterceptSpec{{Class: "Base", Original: "a", Wrapper: "b"}},
	}
	assert.Equal(t, CompilationStats{ClassCount: 2, MethodCount: 3, InterceptCount: 1}, calculateStats(prog))
}

func TestParseCompileError(t *testing.T) {
	code, msg := parseCompileError(&LoadError{Code: ErrCodeNotFound, Message: "gone"})
	assert.Equal(t, ErrCodeNotFound, code)
	assert.Equal(t, "gone", msg)

	code, msg = parseCompileError(compiler.ValidationError{
		Field:   "classes[1].super",
		Message: "unknown superclass",
		Code:    compiler.ErrUnknownSuperclass,
	})
	assert.Equal(t, "E110", code)
	assert.Equal(t, "classes[1].super: unknown superclass", msg)

	code, _ = parseCompileError(os.ErrPermission)
	assert.Equal(t, ErrCodeGeneric, code)
}
