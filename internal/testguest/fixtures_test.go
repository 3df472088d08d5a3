package testguest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/wasmbridge/wireformat"
)

func TestFixtures_Compile(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	for _, c := range []wireformat.Codec{wireformat.JSON, wireformat.Msgpack} {
		t.Run(c.Name(), func(t *testing.T) {
			compiled, err := rt.CompileModule(ctx, MustTest(c))
			require.NoError(t, err)

			exports := compiled.ExportedFunctions()
			for _, name := range []string{
				"loop_forever", "trap", "short_circuit", "echo", "native_type", "literal_bytes",
				"process_string", "process_native", "some_ret", "some_ret_err",
				"try_ptr_succeeds", "try_ptr_fails_fast", "ignore_args_process_string",
				"stacked_strings", "debug", "pages",
			} {
				assert.Contains(t, exports, name)
			}
			assert.Contains(t, compiled.ExportedMemories(), "memory")
			assert.Len(t, compiled.ImportedFunctions(), 7)

			mem, err := rt.CompileModule(ctx, MustMemory(c))
			require.NoError(t, err)
			assert.Contains(t, mem.ExportedFunctions(), "grow_and_fill")
		})
	}
}

func TestEnvelopeFrame(t *testing.T) {
	prefix, suffix, err := envelopeFrame(wireformat.JSON)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":`, string(prefix))
	assert.Equal(t, `}`, string(suffix))

	for _, c := range []wireformat.Codec{wireformat.JSON, wireformat.Msgpack} {
		t.Run(c.Name(), func(t *testing.T) {
			prefix, suffix, err := envelopeFrame(c)
			require.NoError(t, err)

			val, err := wireformat.Encode(c, "framed")
			require.NoError(t, err)
			framed := append(append(append([]byte{}, prefix...), val...), suffix...)

			got, err := wireformat.DecodeEnvelope[string](c, framed)
			require.NoError(t, err)
			assert.Equal(t, "framed", got)
		})
	}
}

func TestSomeStruct_Process(t *testing.T) {
	s := SomeStruct{Inner: "foo"}
	s.Process()
	assert.Equal(t, "processed: foo", s.Inner)
}

func TestPacked_Compile(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	compiled, err := rt.CompileModule(ctx, MustPacked())
	require.NoError(t, err)

	exports := compiled.ExportedFunctions()
	for _, name := range []string{"process_packed", "garbage_result", "out_of_bounds_result"} {
		assert.Contains(t, exports, name)
	}
	assert.Equal(t, "(i64) -> (i64)", signature(exports["process_packed"]))

	imports := compiled.ImportedFunctions()
	require.Len(t, imports, 1)
	module, name, _ := imports[0].Import()
	assert.Equal(t, ImportModule, module)
	assert.Equal(t, FuncProcessString, name)
}

func signature(def api.FunctionDefinition) string {
	names := func(types []api.ValueType) string {
		out := make([]string, len(types))
		for i, t := range types {
			out[i] = api.ValueTypeName(t)
		}
		return "(" + strings.Join(out, ", ") + ")"
	}
	return names(def.ParamTypes()) + " -> " + names(def.ResultTypes())
}

func TestProcessedString(t *testing.T) {
	assert.Equal(t, "host: guest: abc", ProcessedString(wireformat.JSON, "abc"))
	assert.Equal(t, "host: abc", ProcessedString(wireformat.Msgpack, "abc"))
}
