package testguest

import (
	"bytes"
	"fmt"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/hostfuncs"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// Host functions the fixture guests import besides the core bundle.
const (
	FuncShortCircuit  = "__short_circuit"
	FuncProcessString = "__test_process_string"
	FuncProcessStruct = "__test_process_struct"
)

// ImportModule is the module fixture guests import host functions from.
const ImportModule = "env"

// GuestPrefix is what process_string prepends on the guest side under JSON.
const GuestPrefix = "guest: "

// ProcessedString is what process_string returns for s under codec c. The
// host always prefixes "host: "; under JSON the guest first splices
// GuestPrefix into the encoded argument. Msgpack string headers carry the
// length, so there the argument is forwarded unchanged.
func ProcessedString(c wireformat.Codec, s string) string {
	if c.Name() == wireformat.CodecJSON {
		return "host: " + GuestPrefix + s
	}
	return "host: " + s
}

// GrowBytes is how much arena grow_and_fill claims per call.
const GrowBytes = 3 * 65536

// SomeStruct is the structured value the fixtures exchange.
type SomeStruct struct {
	Inner string `json:"inner" msgpack:"inner" validate:"required"`
}

// Process marks the struct as handled by the host.
func (s *SomeStruct) Process() {
	s.Inner = "processed: " + s.Inner
}

// Bundle returns the host functions fixture guests need besides the core bundle.
func Bundle() hostfuncs.HostFuncBundle {
	return hostfuncs.NewBundle(map[string]hostfuncs.Function{
		FuncShortCircuit: {
			Pair: hostfuncs.NewShortCircuitHandler(func(hostfuncs.HostContext, wireformat.Unit) string {
				return "shorts"
			}),
		},
		FuncProcessString: {
			Pair: hostfuncs.NewHandler(func(_ hostfuncs.HostContext, s string) (string, error) {
				return "host: " + s, nil
			}),
		},
		FuncProcessStruct: {
			Pair: hostfuncs.NewHandler(func(_ hostfuncs.HostContext, s SomeStruct) (SomeStruct, error) {
				s.Process()
				return s, nil
			}),
		},
	})
}

var (
	pairType   = FuncType{Params: []ValType{I32, I32}, Results: []ValType{I64}}
	scalar32   = FuncType{Params: []ValType{I32}, Results: []ValType{I32}}
	scalar64   = FuncType{Params: []ValType{I32}, Results: []ValType{I64}}
	nullaryI32 = FuncType{Results: []ValType{I32}}
)

// Test assembles the main fixture guest for codec c. Its exports:
//
//	loop_forever                never returns
//	trap                        hits unreachable
//	short_circuit               the host answers "shorts" for it
//	echo, native_type,
//	literal_bytes               return their argument
//	process_string              see ProcessedString
//	process_native              host processes a SomeStruct
//	some_ret                    Ok(SomeStruct{"foo"})
//	some_ret_err                a Guest error raised at src/wasm.rs:103
//	try_ptr_succeeds            Ok(Ok(SomeStruct{"foo"}))
//	try_ptr_fails_fast          raises a Guest error from src/wasm.rs:132
//	ignore_args_process_string  Ok("")
//	stacked_strings             Ok("first")
//	debug                       reports its argument's length to __debug
//	pages                       () -> i32, the current page count
func Test(c wireformat.Codec) ([]byte, error) {
	m := NewModule()
	iAllocate := m.Import(ImportModule, hostfuncs.FuncAllocate, scalar32)
	iPages := m.Import(ImportModule, hostfuncs.FuncPages, scalar32)
	iDebug := m.Import(ImportModule, hostfuncs.FuncDebug, scalar64)
	iRuntimeError := m.Import(ImportModule, hostfuncs.FuncRuntimeError, pairType)
	iShortCircuit := m.Import(ImportModule, FuncShortCircuit, pairType)
	iProcessString := m.Import(ImportModule, FuncProcessString, pairType)
	iProcessStruct := m.Import(ImportModule, FuncProcessStruct, pairType)

	s := &statics{m: m, next: 16}
	var err error
	put := func(v []byte, e error) blob {
		if e != nil && err == nil {
			err = e
		}
		return s.put(v)
	}

	shortReq := put(wireformat.Encode(c, wireformat.Unit{}))
	notShorts := put(wireformat.EncodeOk(c, "not shorts"))
	someRet := put(wireformat.EncodeOk(c, SomeStruct{Inner: "foo"}))
	someRetErr := put(wireformat.EncodeErr(c, errors.At("src/wasm.rs", 103, errors.KindGuest, "oh no!")))
	tryPtrOk := put(wireformat.EncodeOk(c, wireformat.Ok(SomeStruct{Inner: "foo"})))
	failsFast := put(wireformat.Encode(c, errors.At("src/wasm.rs", 132, errors.KindGuest, "it fails!: ()")))
	emptyString := put(wireformat.EncodeOk(c, ""))
	first := put(wireformat.EncodeOk(c, "first"))
	quotedPrefix := put([]byte(`"`+GuestPrefix), nil)
	prefixBytes, suffixBytes, ferr := envelopeFrame(c)
	prefix := put(prefixBytes, ferr)
	suffix := put(suffixBytes, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fixture data: %w", err)
	}

	export := func(name string, code *Code, locals ...ValType) uint32 {
		idx := m.Func(pairType, locals, code)
		m.ExportFunc(name, idx)
		return idx
	}

	export("loop_forever", NewCode().Loop().Br(0).End().Unreachable())
	export("trap", NewCode().Unreachable())
	export("short_circuit", NewCode().
		U32(shortReq.ptr).U32(shortReq.n).Call(iShortCircuit).Drop().
		Packed(notShorts.ptr, notShorts.n))

	// echo: out = __allocate(len + framing); prefix ++ arg ++ suffix
	const out, total = 2, 3
	framing := prefix.n + suffix.n
	echo := export("echo", NewCode().
		LocalGet(1).U32(framing).I32Add().LocalTee(total).
		Call(iAllocate).LocalSet(out).
		LocalGet(out).U32(prefix.ptr).U32(prefix.n).MemoryCopy().
		LocalGet(out).U32(prefix.n).I32Add().LocalGet(0).LocalGet(1).MemoryCopy().
		LocalGet(out).U32(prefix.n).I32Add().LocalGet(1).I32Add().U32(suffix.ptr).U32(suffix.n).MemoryCopy().
		PackI32Pair(out, total), I32, I32)
	m.ExportFunc("native_type", echo)
	m.ExportFunc("literal_bytes", echo)

	processString := NewCode().LocalGet(0).LocalGet(1).Call(iProcessString)
	var processLocals []ValType
	if c.Name() == wireformat.CodecJSON {
		// out = __allocate(len + prefix); `"guest: ` ++ arg[1:]
		spliced := quotedPrefix.n - 1
		processString = NewCode().
			LocalGet(1).U32(spliced).I32Add().LocalTee(total).
			Call(iAllocate).LocalSet(out).
			LocalGet(out).U32(quotedPrefix.ptr).U32(quotedPrefix.n).MemoryCopy().
			LocalGet(out).U32(quotedPrefix.n).I32Add().
			LocalGet(0).U32(1).I32Add().
			LocalGet(1).I32Const(-1).I32Add().MemoryCopy().
			LocalGet(out).LocalGet(total).Call(iProcessString)
		processLocals = []ValType{I32, I32}
	}
	export("process_string", processString, processLocals...)
	export("process_native", NewCode().LocalGet(0).LocalGet(1).Call(iProcessStruct))
	export("some_ret", NewCode().Packed(someRet.ptr, someRet.n))
	export("some_ret_err", NewCode().Packed(someRetErr.ptr, someRetErr.n))
	export("try_ptr_succeeds", NewCode().Packed(tryPtrOk.ptr, tryPtrOk.n))
	export("try_ptr_fails_fast", NewCode().U32(failsFast.ptr).U32(failsFast.n).Call(iRuntimeError))
	export("ignore_args_process_string", NewCode().Packed(emptyString.ptr, emptyString.n))
	export("stacked_strings", NewCode().Packed(first.ptr, first.n))
	export("debug", NewCode().LocalGet(1).Call(iDebug))

	m.ExportFunc("pages", m.Func(nullaryI32, nil, NewCode().U32(0).Call(iPages)))

	m.Memory(1, 0)
	m.ExportGlobalI32("__heap_base", int32(s.heapBase())) //nolint:gosec // G115: below one page
	return m.Encode(), nil
}

// Memory assembles a guest exporting grow_and_fill, which claims GrowBytes of
// arena through __allocate, fills it and returns Ok(Unit). It has no
// __heap_base, so its arena starts at the end of its initial memory.
func Memory(c wireformat.Codec) ([]byte, error) {
	m := NewModule()
	iAllocate := m.Import(ImportModule, hostfuncs.FuncAllocate, scalar32)

	okBytes, err := wireformat.EncodeOk(c, wireformat.Unit{})
	if err != nil {
		return nil, fmt.Errorf("failed to encode fixture data: %w", err)
	}
	s := &statics{m: m, next: 16}
	ok := s.put(okBytes)

	const region = 2
	m.ExportFunc("grow_and_fill", m.Func(pairType, []ValType{I32}, NewCode().
		U32(GrowBytes).Call(iAllocate).LocalSet(region).
		LocalGet(region).U32(0xAB).U32(GrowBytes).MemoryFill().
		Packed(ok.ptr, ok.n)))

	m.Memory(1, 0)
	return m.Encode(), nil
}

// MustTest is Test for fixtures that cannot fail to encode.
func MustTest(c wireformat.Codec) []byte {
	b, err := Test(c)
	if err != nil {
		panic(err)
	}
	return b
}

// MustMemory is Memory for fixtures that cannot fail to encode.
func MustMemory(c wireformat.Codec) []byte {
	b, err := Memory(c)
	if err != nil {
		panic(err)
	}
	return b
}

// envelopeFrame returns the bytes c puts before and after the value inside a
// success envelope, so a guest can wrap an encoded argument without decoding it.
func envelopeFrame(c wireformat.Codec) (prefix, suffix []byte, err error) {
	const marker = 7777777
	env, err := wireformat.EncodeOk(c, marker)
	if err != nil {
		return nil, nil, err
	}
	val, err := wireformat.Encode(c, marker)
	if err != nil {
		return nil, nil, err
	}
	i := bytes.Index(env, val)
	if i < 0 || bytes.Contains(env[i+len(val):], val) {
		return nil, nil, fmt.Errorf("%s envelope has no unique value slot", c.Name())
	}
	return env[:i], env[i+len(val):], nil
}

type blob struct {
	ptr, n uint32
}

// statics lays out constant data at the bottom of memory.
type statics struct {
	m    *Module
	next uint32
}

func (s *statics) put(b []byte) blob {
	ptr := (s.next + 7) &^ 7
	if len(b) > 0 {
		s.m.Data(ptr, b)
	}
	n := uint32(len(b)) //nolint:gosec // G115: fixture data is small
	s.next = ptr + n
	return blob{ptr: ptr, n: n}
}

// heapBase is the first address past the static data, rounded to 1 KiB.
func (s *statics) heapBase() uint32 {
	return (s.next + 1023) &^ 1023
}
