// Package wasmskill embeds skill modules compiled to WebAssembly. A module
// implements a four-export contract: get_metadata, get_tools, execute_tool and
// an optional validate_config. Strings cross the boundary through guest memory
// with ptr/len pairs; results come back as a single u64 packing ptr<<32|len.
// The guest additionally exports allocate(size) so the host can place call
// arguments into guest memory.
package wasmskill

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero/api"
)

const (
	exportMetadata       = "get_metadata"
	exportTools          = "get_tools"
	exportExecuteTool    = "execute_tool"
	exportValidateConfig = "validate_config"
	exportAllocate       = "allocate"
)

func unpack(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}

func pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// readPacked copies a packed ptr/len string out of guest memory.
func readPacked(mod api.Module, packed uint64) (string, error) {
	ptr, length := unpack(packed)
	if length == 0 {
		return "", nil
	}
	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return "", errors.Errorf("module returned out-of-range memory (ptr=%d len=%d)", ptr, length)
	}
	return string(buf), nil
}

// writeString places s into guest memory via the module's allocate export and
// returns its ptr/len.
func writeString(ctx context.Context, mod api.Module, s string) (uint32, uint32, error) {
	alloc := mod.ExportedFunction(exportAllocate)
	if alloc == nil {
		return 0, 0, errors.Errorf("module does not export %q", exportAllocate)
	}
	if len(s) == 0 {
		return 0, 0, nil
	}
	res, err := alloc.Call(ctx, uint64(len(s)))
	if err != nil {
		return 0, 0, errors.Wrap(err, "guest allocation failed")
	}
	ptr := uint32(res[0])
	if !mod.Memory().Write(ptr, []byte(s)) {
		return 0, 0, errors.Errorf("guest allocation out of range (ptr=%d len=%d)", ptr, len(s))
	}
	return ptr, uint32(len(s)), nil
}
