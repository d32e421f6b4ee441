package dimension

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// LoadFile reads and compiles one CUE schema file.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dimension schema: %w", err)
	}
	return LoadBytes(data, path)
}

// LoadBytes compiles CUE source. The filename only feeds error positions.
func LoadBytes(data []byte, filename string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v)
}
