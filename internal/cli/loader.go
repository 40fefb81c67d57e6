package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/swizzle/internal/compiler"
	"github.com/roach88/swizzle/internal/ir"
)

// LoadResult contains the program loaded from a specs directory or file.
type LoadResult struct {
	Program   *ir.Program
	Files     []string // CUE files that were loaded, sorted
	FileCount int
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSpecs compiles the CUE files in dir, or the single file dir names, into
// one program. Files are unified, so a class may span several files.
//
// LoadSpecs does not run compiler.Validate; callers decide whether validation
// failures are fatal.
func LoadSpecs(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs path not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs path: %v", err)}
	}

	dir := path
	var files []string
	if info.IsDir() {
		files, err = FindCUEFiles(dir)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
		}
	} else {
		dir = filepath.Dir(path)
		files = []string{filepath.Base(path)}
	}

	// Files without a package clause are only loaded when named explicitly.
	instances := load.Instances(files, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	// CompileProgram reports build errors of the value with their position.
	prog, err := compiler.CompileProgram(cuecontext.New().BuildInstance(inst))
	if err != nil {
		return nil, convertCompileError(err)
	}

	for i, f := range files {
		files[i] = filepath.Join(dir, f)
	}
	return &LoadResult{
		Program:   prog,
		Files:     files,
		FileCount: len(files),
	}, nil
}

// FindCUEFiles returns the names of the .cue files directly inside dir,
// sorted. Subdirectories are not searched: one directory is one program.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// convertCompileError converts a compiler error to a LoadError with position
// info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Error code constants, unified across all CLI commands. Validation failures
// reuse the compiler's E1xx codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeJournal     = "E008" // Journal open/read/write error
	ErrCodeInvalidArgs = "E009" // Bad --args or target
	ErrCodeSendFailed  = "E010" // Send returned an error
	ErrCodeBootFailed  = "E011" // Declared interception failed to install
	ErrCodeRunMismatch = "E012" // --run names a run journaled by another program
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "super":
		return compiler.ErrInvalidName
	case field == "step":
		return compiler.ErrInvalidStep
	case field == "body":
		return compiler.ErrMissingReturn
	case isMethodBodyField(field):
		return compiler.ErrEmptyBody
	case field == "type":
		return compiler.ErrFloatTypeForbidden
	default:
		return ErrCodeGeneric
	}
}

func isMethodBodyField(field string) bool {
	matched, _ := filepath.Match("method.*.body", field)
	return matched
}
