// Package wasmtest assembles minimal WebAssembly modules implementing the
// skill contract, so tests can drive the sandbox path without a guest
// toolchain. Modules carry their JSON payloads in data segments and export
// memory, allocate and the contract entry points.
package wasmtest

// ModuleSpec describes one fixture module.
type ModuleSpec struct {
	// Metadata is the JSON get_metadata returns.
	Metadata string
	// Tools is the JSON get_tools returns.
	Tools string
	// Result is the JSON execute_tool returns. Ignored when Spin or FetchURL
	// is set.
	Result string
	// Spin makes execute_tool loop forever, for timeout teardown tests.
	Spin bool
	// FetchURL makes execute_tool call the skillrun.http_get host import with
	// this URL and return the host response verbatim.
	FetchURL string
	// ValidateConfigResult, when non-empty, adds a validate_config export
	// returning this JSON.
	ValidateConfigResult string
}

// Value types and opcodes from the WebAssembly binary format.
const (
	valI32 = 0x7F
	valI64 = 0x7E

	opLoop      = 0x03
	opEnd       = 0x0B
	opBr        = 0x0C
	opCall      = 0x10
	opLocalGet  = 0x20
	opGlobalGet = 0x23
	opGlobalSet = 0x24
	opI32Const  = 0x41
	opI64Const  = 0x42
	opI32Add    = 0x6A

	blockEmpty = 0x40

	secType     = 1
	secImport   = 2
	secFunction = 3
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secCode     = 10
	secData     = 11

	kindFunc   = 0x00
	kindMemory = 0x02
)

// Bump allocations start past the data segments.
const heapStart = 16384

// Build assembles the module binary.
func Build(spec ModuleSpec) []byte {
	type segment struct {
		off  uint32
		data []byte
	}
	var segments []segment
	cursor := uint32(16)
	place := func(s string) (uint32, uint32) {
		off := cursor
		segments = append(segments, segment{off: off, data: []byte(s)})
		cursor += uint32(len(s)) + 8
		return off, uint32(len(s))
	}

	metaPtr, metaLen := place(spec.Metadata)
	toolsPtr, toolsLen := place(spec.Tools)

	var execBody []byte
	switch {
	case spec.Spin:
		execBody = flatten(
			[]byte{opLoop, blockEmpty, opBr, 0x00, opEnd},
			i64Const(0),
		)
	case spec.FetchURL != "":
		urlPtr, urlLen := place(spec.FetchURL)
		execBody = flatten(
			i32Const(int32(urlPtr)),
			i32Const(int32(urlLen)),
			[]byte{opCall, 0x00}, // the http_get import
		)
	default:
		ptr, length := place(spec.Result)
		execBody = i64Const(packed(ptr, length))
	}

	var vcBody []byte
	if spec.ValidateConfigResult != "" {
		ptr, length := place(spec.ValidateConfigResult)
		vcBody = i64Const(packed(ptr, length))
	}

	// Types: 0 ()->i64, 1 (i32)->i32, 2 (i32 x4)->i64, 3 (i32,i32)->i64.
	types := vec(
		funcType(nil, []byte{valI64}),
		funcType([]byte{valI32}, []byte{valI32}),
		funcType([]byte{valI32, valI32, valI32, valI32}, []byte{valI64}),
		funcType([]byte{valI32, valI32}, []byte{valI64}),
	)

	// Local functions in declaration order: allocate, get_metadata,
	// get_tools, execute_tool, optional validate_config.
	funcTypes := [][]byte{uleb(1), uleb(0), uleb(0), uleb(2)}
	bodies := [][]byte{
		codeEntry(flatten(
			[]byte{opGlobalGet, 0x00, opGlobalGet, 0x00, opLocalGet, 0x00, opI32Add, opGlobalSet, 0x00},
		)),
		codeEntry(i64Const(packed(metaPtr, metaLen))),
		codeEntry(i64Const(packed(toolsPtr, toolsLen))),
		codeEntry(execBody),
	}
	if vcBody != nil {
		funcTypes = append(funcTypes, uleb(3))
		bodies = append(bodies, codeEntry(vcBody))
	}

	// With the host import present, local function indices shift by one.
	funcBase := uint32(0)
	if spec.FetchURL != "" {
		funcBase = 1
	}

	exports := [][]byte{
		exportEntry("memory", kindMemory, 0),
		exportEntry("allocate", kindFunc, funcBase+0),
		exportEntry("get_metadata", kindFunc, funcBase+1),
		exportEntry("get_tools", kindFunc, funcBase+2),
		exportEntry("execute_tool", kindFunc, funcBase+3),
	}
	if vcBody != nil {
		exports = append(exports, exportEntry("validate_config", kindFunc, funcBase+4))
	}

	mod := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	mod = append(mod, section(secType, types)...)
	if spec.FetchURL != "" {
		imp := flatten(name("skillrun"), name("http_get"), []byte{kindFunc}, uleb(3))
		mod = append(mod, section(secImport, vec(imp))...)
	}
	mod = append(mod, section(secFunction, vec(funcTypes...))...)
	mod = append(mod, section(secMemory, vec([]byte{0x00, 0x01}))...) // one page
	mod = append(mod, section(secGlobal, vec(flatten(
		[]byte{valI32, 0x01}, // mutable heap pointer
		i32Const(heapStart),
		[]byte{opEnd},
	)))...)
	mod = append(mod, section(secExport, vec(exports...))...)
	mod = append(mod, section(secCode, vec(bodies...))...)

	segs := make([][]byte, 0, len(segments))
	for _, s := range segments {
		segs = append(segs, flatten(
			[]byte{0x00}, // active, memory 0
			i32Const(int32(s.off)),
			[]byte{opEnd},
			uleb(uint64(len(s.data))),
			s.data,
		))
	}
	mod = append(mod, section(secData, vec(segs...))...)

	return mod
}

func packed(ptr, length uint32) int64 {
	return int64(uint64(ptr)<<32 | uint64(length))
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func i32Const(v int32) []byte {
	return append([]byte{opI32Const}, sleb(int64(v))...)
}

func i64Const(v int64) []byte {
	return append([]byte{opI64Const}, sleb(v)...)
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func flatten(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// vec prefixes the concatenated items with their count.
func vec(items ...[]byte) []byte {
	return flatten(append([][]byte{uleb(uint64(len(items)))}, items...)...)
}

func funcType(params, results []byte) []byte {
	return flatten(
		[]byte{0x60},
		uleb(uint64(len(params))), params,
		uleb(uint64(len(results))), results,
	)
}

// section wraps contents into a section: id byte, then size-prefixed payload.
func section(id byte, contents []byte) []byte {
	return flatten([]byte{id}, uleb(uint64(len(contents))), contents)
}

// codeEntry wraps instructions into a sized function body with no locals.
func codeEntry(instrs []byte) []byte {
	body := flatten([]byte{0x00}, instrs, []byte{opEnd})
	return append(uleb(uint64(len(body))), body...)
}

func exportEntry(n string, kind byte, idx uint32) []byte {
	return flatten(name(n), []byte{kind}, uleb(uint64(idx)))
}
