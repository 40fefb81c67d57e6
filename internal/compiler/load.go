package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/swizzle/internal/ir"
)

// CompileFiles compiles one or more CUE files as a single program.
//
// The files are unified, so a class may be declared in one file and given
// methods in another. Lists do not merge: keep the intercept list in one file.
func CompileFiles(paths ...string) (*ir.Program, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no CUE files given")
	}

	ctx := cuecontext.New()
	var v cue.Value
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		fv := ctx.CompileBytes(data, cue.Filename(path))
		if err := fv.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		if i == 0 {
			v = fv
			continue
		}
		v = v.Unify(fv)
	}
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileProgram(v)
}
