package ggmlbuild

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testWrapper    = filepath.Join("testdata", "wrapper.h")
	testSourceDir  = filepath.Join("testdata", "ggml")
	testIncludeDir = filepath.Join("testdata", "ggml", "include")
)

func scanTestHeaders(t *testing.T) []Symbol {
	t.Helper()
	symbols, err := ScanHeaders(testWrapper, []string{testIncludeDir})
	require.NoError(t, err)
	return symbols
}

func findSymbol(symbols []Symbol, kind SymbolKind, name string) (Symbol, bool) {
	for _, s := range symbols {
		if s.Kind == kind && s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

func TestScanHeadersTypes(t *testing.T) {
	symbols := scanTestHeaders(t)

	params, ok := findSymbol(symbols, SymbolType, "ggml_init_params")
	require.True(t, ok)
	assert.Equal(t, FormStruct, params.Form)
	assert.True(t, params.Tagged)
	assert.True(t, params.Complete)
	assert.Equal(t, "struct_ggml_init_params", params.CRef())
	assert.Equal(t, "struct ggml_init_params", params.CType())
	assert.Equal(t, "ggml.h", filepath.Base(params.File))

	ctx, ok := findSymbol(symbols, SymbolType, "ggml_context")
	require.True(t, ok)
	assert.False(t, ctx.Complete)

	typ, ok := findSymbol(symbols, SymbolType, "ggml_type")
	require.True(t, ok)
	assert.Equal(t, FormEnum, typ.Form)
	assert.Equal(t, []string{"GGML_TYPE_F32", "GGML_TYPE_F16", "GGML_TYPE_Q4_0", "GGML_TYPE_COUNT"}, typ.Variants)

	cb, ok := findSymbol(symbols, SymbolType, "ggml_abort_callback")
	require.True(t, ok)
	assert.Equal(t, FormTypedef, cb.Form)

	opts, ok := findSymbol(symbols, SymbolType, "ggml_cplan_opts")
	require.True(t, ok)
	assert.Equal(t, FormStruct, opts.Form)
	assert.False(t, opts.Tagged)
	assert.True(t, opts.Complete)
	assert.Equal(t, "ggml_cplan_opts", opts.CRef())

	backend, ok := findSymbol(symbols, SymbolType, "ggml_backend_t")
	require.True(t, ok)
	assert.Equal(t, FormTypedef, backend.Form)
	assert.Equal(t, "struct ggml_backend *", backend.Target)
	assert.Equal(t, "ggml-backend.h", filepath.Base(backend.File))

	var status []Symbol
	for _, s := range symbols {
		if s.Kind == SymbolType && s.Name == "ggml_status" {
			status = append(status, s)
		}
	}
	require.Len(t, status, 2)
	assert.Equal(t, FormEnum, status[0].Form)
	assert.Equal(t, FormTypedef, status[1].Form)
	assert.Equal(t, "enum ggml_status", status[1].Target)
}

func TestScanHeadersFunctions(t *testing.T) {
	symbols := scanTestHeaders(t)

	fn, ok := findSymbol(symbols, SymbolFunction, "ggml_new_tensor_1d")
	require.True(t, ok)
	assert.Equal(t, "struct ggml_tensor *", fn.Result)
	assert.Equal(t, []Param{
		{Name: "ctx", Type: "struct ggml_context *"},
		{Name: "type", Type: "enum ggml_type"},
		{Name: "ne0", Type: "int64_t"},
	}, fn.Params)

	name, ok := findSymbol(symbols, SymbolFunction, "ggml_type_name")
	require.True(t, ok)
	assert.Equal(t, "const char *", name.Result)

	printf, ok := findSymbol(symbols, SymbolFunction, "ggml_log_printf")
	require.True(t, ok)
	assert.True(t, printf.Variadic)
	assert.Equal(t, []Param{{Name: "fmt", Type: "const char *"}}, printf.Params)

	old, ok := findSymbol(symbols, SymbolFunction, "ggml_old")
	require.True(t, ok, "deprecated declarations are unwrapped")
	assert.Equal(t, "void", old.Result)
	assert.Empty(t, old.Params)

	_, ok = findSymbol(symbols, SymbolFunction, "ggml_is_contiguous")
	assert.True(t, ok, "attributes are stripped")

	_, ok = findSymbol(symbols, SymbolFunction, "ggml_nbytes")
	assert.True(t, ok)

	_, ok = findSymbol(symbols, SymbolFunction, "ggml_backend_name")
	assert.True(t, ok, "included headers are scanned")

	_, ok = findSymbol(symbols, SymbolFunction, "ggml_inline_helper")
	assert.False(t, ok, "function definitions are not declarations")

	_, ok = findSymbol(symbols, SymbolFunction, "helper_not_exported")
	assert.True(t, ok, "scanning does not filter")
}

func TestScanHeadersConstants(t *testing.T) {
	symbols := scanTestHeaders(t)

	tests := map[string]string{
		"GGML_MAX_DIMS":   "4",
		"GGML_FILE_MAGIC": "0x67676d6c",
		"GGUF_MAGIC":      `"GGUF"`,
		"OTHER_LIMIT":     "16",
	}
	for name, value := range tests {
		c, ok := findSymbol(symbols, SymbolConstant, name)
		require.True(t, ok, name)
		assert.Equal(t, value, c.Value, name)
	}

	for _, name := range []string{"GGML_PAD", "GGML_API", "GGML_DEPRECATED"} {
		_, ok := findSymbol(symbols, SymbolConstant, name)
		assert.False(t, ok, name)
	}
}

func TestScanHeadersMissingQuotedInclude(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(filepath.Join(dir, "ggml.h"), "GGML_API void ggml_free(struct ggml_context * ctx);\n"))
	require.NoError(t, writeFile(filepath.Join(dir, "wrapper.h"), "#include \"ggml.h\"\n#include \"gguf.h\"\n"))

	symbols, err := ScanHeaders(filepath.Join(dir, "wrapper.h"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBindingGeneration)
	assert.Contains(t, err.Error(), `include "gguf.h" not found`)
	assert.Nil(t, symbols)
}

func TestScanHeadersSkipsMissingSystemInclude(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(filepath.Join(dir, "wrapper.h"), "#include <gguf/missing.h>\nGGML_API void ggml_free(struct ggml_context * ctx);\n"))

	symbols, err := ScanHeaders(filepath.Join(dir, "wrapper.h"), nil)
	require.NoError(t, err)
	_, ok := findSymbol(symbols, SymbolFunction, "ggml_free")
	assert.True(t, ok)
}

func TestScanHeadersAttributesBeforeAPIMacro(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(filepath.Join(dir, "wrapper.h"),
		"GGML_NORETURN GGML_API void ggml_die(const char *, int);\n"+
			"GGML_NORETURN GGML_ATTRIBUTE_FORMAT(3, 4)\nGGML_API void ggml_abort(const char * file, int line, const char * fmt, ...);\n"))

	symbols, err := ScanHeaders(filepath.Join(dir, "wrapper.h"), nil)
	require.NoError(t, err)

	die, ok := findSymbol(symbols, SymbolFunction, "ggml_die")
	require.True(t, ok)
	assert.Equal(t, "void", die.Result)
	require.Len(t, die.Params, 2)

	abort, ok := findSymbol(symbols, SymbolFunction, "ggml_abort")
	require.True(t, ok)
	assert.True(t, abort.Variadic)
}

func TestScanHeadersMissingEntry(t *testing.T) {
	_, err := ScanHeaders(filepath.Join(t.TempDir(), "nope.h"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBindingGeneration))
}

func TestScanHeadersUnbalanced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.h")
	require.NoError(t, os.WriteFile(path, []byte("void ggml_broken(int x;\n"), 0o644))

	_, err := ScanHeaders(path, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBindingGeneration))
}

func TestParseParam(t *testing.T) {
	tests := []struct {
		in   string
		want Param
	}{
		{"int x", Param{Name: "x", Type: "int"}},
		{"const char* name", Param{Name: "name", Type: "const char *"}},
		{"struct ggml_tensor", Param{Type: "struct ggml_tensor"}},
		{"unsigned int", Param{Type: "unsigned int"}},
		{"float data[16]", Param{Name: "data", Type: "float *"}},
		{"void (*cb)(void *)", Param{Name: "cb", Type: "void (*cb)(void *)"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseParam(tt.in))
		})
	}
}

func TestCleanDeclaration(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{
			in:   `GGML_API void ggml_a(void)`,
			want: "void ggml_a(void)",
		},
		{
			in:   `GGML_DEPRECATED(GGML_API int ggml_b(int x), "use ggml_c")`,
			want: "int ggml_b(int x)",
		},
		{
			in:   `GGML_API bool ggml_c(void) __attribute__((format(printf, 1, 2)))`,
			want: "bool ggml_c(void)",
		},
		{
			in:   `extern int ggml_d(float * GGML_RESTRICT x)`,
			want: "int ggml_d(float * x)",
		},
		{
			in:   `GGML_NORETURN GGML_API void ggml_die(const char *, int)`,
			want: "void ggml_die(const char *, int)",
		},
		{
			in:   `GGML_NORETURN GGML_ATTRIBUTE_FORMAT(3, 4) GGML_API void ggml_abort(const char * file, int line, const char * fmt, ...)`,
			want: "void ggml_abort(const char * file, int line, const char * fmt, ...)",
		},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanDeclaration(tt.in), tt.in)
	}
}
