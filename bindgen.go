package ggmlbuild

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/tools/imports"
)

// EnumStyle selects how C enums are rendered.
type EnumStyle int

// Enum styles.
const (
	// EnumNewType renders a named Go integer type with typed variants.
	EnumNewType EnumStyle = iota
	// EnumConsts renders variants as untyped constants and enum values as int32.
	EnumConsts
)

// BindingOptions configures the generated Go binding file.
type BindingOptions struct {
	// Package is the Go package name of the generated file.
	Package string
	// Includes are the headers the cgo preamble includes, in order.
	Includes []string
	// CFlags are emitted as #cgo CFLAGS.
	CFlags []string

	EnumStyle EnumStyle
	// NonExhaustive enums may receive values newer native versions add;
	// exhaustive enums get a Valid method.
	NonExhaustive bool
	// DeriveDefault emits NewX zero-value constructors for complete structs.
	DeriveDefault bool
	// DeriveDebug emits String methods for enums and complete structs.
	DeriveDebug bool
	// DeriveCopy emits Clone methods for complete structs.
	DeriveCopy bool
	// LayoutTests emits VerifyLayout, which compares Go and native sizes.
	LayoutTests bool

	Metadata BuildMetadata
}

// DefaultBindingOptions returns the options used for ggml: extensible
// typed enums, default/debug/copy helpers and no layout checks.
func DefaultBindingOptions(pkg string) BindingOptions {
	return BindingOptions{
		Package:       pkg,
		EnumStyle:     EnumNewType,
		NonExhaustive: true,
		DeriveDefault: true,
		DeriveDebug:   true,
		DeriveCopy:    true,
		LayoutTests:   false,
	}
}

// SkippedSymbol is an allowlisted symbol with no Go rendering.
type SkippedSymbol struct {
	Name   string
	Reason string
}

// Bindings is a generated binding file.
type Bindings struct {
	Source  []byte
	Emitted []string
	Skipped []SkippedSymbol
}

type goType struct {
	sym    Symbol
	goName string
	cref   string
	form   TypeForm
	alias  bool    // opaque typedef, identical to its C type
	target *goType // typedef of an allowlisted struct, union or enum
}

type generator struct {
	opts   BindingOptions
	buf    bytes.Buffer
	used   map[string]bool
	tagged map[string]*goType
	idents map[string]*goType
	out    *Bindings
}

// GenerateBindings renders symbols, which should already be filtered by the
// allowlist, as a Go file of cgo declarations and wrappers.
//
// An empty symbol set, or output that does not format as Go, is
// ErrBindingGeneration.
func GenerateBindings(symbols []Symbol, opts BindingOptions) (*Bindings, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols matched the allowlist", ErrBindingGeneration)
	}
	if opts.Package == "" {
		return nil, fmt.Errorf("%w: package name is empty", ErrBindingGeneration)
	}

	g := &generator{
		opts:   opts,
		used:   map[string]bool{"NativeRevision": true, "NativeCommitTime": true, "VerifyLayout": true},
		tagged: make(map[string]*goType),
		idents: make(map[string]*goType),
		out:    &Bindings{},
	}

	g.register(symbols)
	g.header()
	g.constants(symbols)
	g.types(symbols)
	g.functions(symbols)
	if opts.LayoutTests {
		g.layout(symbols)
	}

	src, err := imports.Process("bindings.go", g.buf.Bytes(), &imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBindingGeneration, err)
	}

	g.out.Source = src
	return g.out, nil
}

// WriteBindings writes generated source to path, creating its directory.
func WriteBindings(path string, b *Bindings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b.Source, 0o644)
}

var taggedRe = regexp.MustCompile(`^(struct|union|enum) ([A-Za-z_]\w*)$`)

func (g *generator) register(symbols []Symbol) {
	for _, s := range symbols {
		if s.Kind != SymbolType || s.Form == FormTypedef {
			continue
		}
		t := &goType{sym: s, goName: g.name(s.Name), cref: s.CRef(), form: s.Form}
		if s.Tagged {
			g.tagged[s.CType()] = t
		} else {
			g.idents[s.Name] = t
		}
	}

	for _, s := range symbols {
		if s.Kind != SymbolType || s.Form != FormTypedef {
			continue
		}
		if m := taggedRe.FindStringSubmatch(normalizeType(s.Target)); m != nil {
			if target, ok := g.tagged[m[0]]; ok {
				if m[2] == s.Name {
					g.idents[s.Name] = target
					continue
				}
				g.idents[s.Name] = &goType{sym: s, goName: g.name(s.Name), cref: s.Name, form: target.form, target: target}
				continue
			}
		}
		g.idents[s.Name] = &goType{sym: s, goName: g.name(s.Name), cref: s.Name, form: FormTypedef, alias: true}
	}
}

// name allocates a unique exported Go identifier for a C name.
func (g *generator) name(cName string) string {
	base := goIdent(cName)
	name := base
	for i := 2; g.used[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	g.used[name] = true
	return name
}

// goIdent converts snake_case or SCREAMING_CASE to CamelCase.
func goIdent(cName string) string {
	var b strings.Builder
	for _, part := range strings.Split(cName, "_") {
		if part == "" {
			continue
		}
		if strings.ToUpper(part) == part {
			part = strings.ToLower(part)
		}
		r := []rune(part)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	name := b.String()
	if name == "" || !unicode.IsLetter([]rune(name)[0]) {
		name = "X" + name
	}
	return name
}

func (g *generator) p(format string, args ...any) {
	fmt.Fprintf(&g.buf, format, args...)
}

func (g *generator) header() {
	g.p("// Code generated by ggml-build. DO NOT EDIT.\n\n")
	g.p("package %s\n\n", g.opts.Package)
	g.p("/*\n")
	if len(g.opts.CFlags) > 0 {
		g.p("#cgo CFLAGS: %s\n", cgoArgs(g.opts.CFlags))
	}
	g.p("#include <stdlib.h>\n")
	for _, inc := range g.opts.Includes {
		g.p("#include %q\n", inc)
	}
	g.p("*/\nimport \"C\"\n\n")
	g.p("import (\n\t\"fmt\"\n\t\"unsafe\"\n)\n\n")
	g.p("// Revision metadata of the native sources the bindings were generated from.\n")
	g.p("const (\n")
	g.p("\tNativeRevision   = %s\n", strconv.Quote(g.opts.Metadata.Revision))
	g.p("\tNativeCommitTime = %s\n", strconv.Quote(g.opts.Metadata.CommitTime))
	g.p(")\n\n")
}

func (g *generator) constants(symbols []Symbol) {
	var lines []string
	for _, s := range symbols {
		if s.Kind != SymbolConstant {
			continue
		}
		name := g.name(s.Name)
		if stringRe.MatchString(s.Value) {
			lines = append(lines, fmt.Sprintf("\t%s = %s // %s", name, s.Value, s.Name))
		} else {
			lines = append(lines, fmt.Sprintf("\t%s = C.%s", name, s.Name))
		}
		g.out.Emitted = append(g.out.Emitted, s.Name)
	}
	if len(lines) == 0 {
		return
	}
	g.p("// Native constants.\nconst (\n%s\n)\n\n", strings.Join(lines, "\n"))
}

func (g *generator) types(symbols []Symbol) {
	for _, s := range symbols {
		if s.Kind != SymbolType {
			continue
		}

		if s.Form == FormTypedef {
			t := g.idents[s.Name]
			if t == nil || t.sym.Name != s.Name || t.sym.Form != FormTypedef {
				continue
			}
			if t.target != nil {
				g.p("// %s mirrors typedef %s.\ntype %s = %s\n\n", t.goName, s.Name, t.goName, t.target.goName)
			} else {
				g.p("// %s mirrors typedef %s.\ntype %s = C.%s\n\n", t.goName, s.Name, t.goName, s.Name)
			}
			g.out.Emitted = append(g.out.Emitted, s.Name)
			continue
		}

		t := g.lookupDecl(s)
		if t == nil {
			continue
		}
		if s.Form == FormEnum {
			g.enum(t)
		} else {
			g.aggregate(t)
		}
		g.out.Emitted = append(g.out.Emitted, s.Name)
	}
}

func (g *generator) lookupDecl(s Symbol) *goType {
	if s.Tagged {
		return g.tagged[s.CType()]
	}
	return g.idents[s.Name]
}

func (g *generator) aggregate(t *goType) {
	s := t.sym
	g.p("// %s mirrors %s.\ntype %s C.%s\n\n", t.goName, s.CType(), t.goName, t.cref)
	if !s.Complete {
		return
	}

	if g.opts.DeriveDefault {
		ctor := g.name("New" + t.goName)
		g.p("// %s returns a zero %s.\nfunc %s() %s {\n\treturn %s{}\n}\n\n", ctor, t.goName, ctor, t.goName, t.goName)
	}
	if g.opts.DeriveDebug {
		g.p("func (v %s) String() string {\n\treturn fmt.Sprintf(\"%s%%+v\", C.%s(v))\n}\n\n", t.goName, t.goName, t.cref)
	}
	if g.opts.DeriveCopy {
		g.p("// Clone returns a bitwise copy of v.\nfunc (v *%s) Clone() %s {\n\treturn *v\n}\n\n", t.goName, t.goName)
	}
}

func (g *generator) enum(t *goType) {
	s := t.sym
	variants := make([]string, len(s.Variants))
	for i, v := range s.Variants {
		variants[i] = g.name(v)
	}

	if g.opts.EnumStyle == EnumConsts {
		if len(variants) == 0 {
			return
		}
		g.p("// Values of %s.\nconst (\n", s.CType())
		for i, v := range s.Variants {
			g.p("\t%s = C.%s\n", variants[i], v)
		}
		g.p(")\n\n")
		return
	}

	g.p("// %s mirrors %s.", t.goName, s.CType())
	if g.opts.NonExhaustive {
		g.p(" Newer native versions may add values not listed here.")
	}
	g.p("\ntype %s int32\n\n", t.goName)

	if len(variants) == 0 {
		return
	}

	g.p("const (\n")
	for i, v := range s.Variants {
		g.p("\t%s %s = C.%s\n", variants[i], t.goName, v)
	}
	g.p(")\n\n")

	table := "names" + t.goName
	if g.opts.DeriveDebug || !g.opts.NonExhaustive {
		g.p("var %s = [...]struct {\n\tv %s\n\tname string\n}{\n", table, t.goName)
		for i, v := range s.Variants {
			g.p("\t{%s, %q},\n", variants[i], v)
		}
		g.p("}\n\n")
	}

	if g.opts.DeriveDebug {
		g.p("func (v %s) String() string {\n", t.goName)
		g.p("\tfor _, n := range %s {\n\t\tif n.v == v {\n\t\t\treturn n.name\n\t\t}\n\t}\n", table)
		g.p("\treturn fmt.Sprintf(\"%s(%%d)\", int32(v))\n}\n\n", t.goName)
	}

	if !g.opts.NonExhaustive {
		g.p("// Valid reports whether v is one of the listed values.\n")
		g.p("func (v %s) Valid() bool {\n", t.goName)
		g.p("\tfor _, n := range %s {\n\t\tif n.v == v {\n\t\t\treturn true\n\t\t}\n\t}\n\treturn false\n}\n\n", table)
	}
}

func (g *generator) layout(symbols []Symbol) {
	g.p("// VerifyLayout compares the size of every complete struct with its native size.\n")
	g.p("func VerifyLayout() error {\n")
	for _, s := range symbols {
		if s.Kind != SymbolType || s.Form == FormTypedef || s.Form == FormEnum || !s.Complete {
			continue
		}
		t := g.lookupDecl(s)
		if t == nil {
			continue
		}
		g.p("\tif got, want := unsafe.Sizeof(%s{}), uintptr(C.sizeof_%s); got != want {\n", t.goName, t.cref)
		g.p("\t\treturn fmt.Errorf(\"%s: size %%d, native %%d\", got, want)\n\t}\n", t.goName)
	}
	g.p("\treturn nil\n}\n\n")
}

func (g *generator) functions(symbols []Symbol) {
	for _, s := range symbols {
		if s.Kind != SymbolFunction {
			continue
		}
		if err := g.function(s); err != nil {
			g.out.Skipped = append(g.out.Skipped, SkippedSymbol{Name: s.Name, Reason: err.Error()})
			continue
		}
		g.out.Emitted = append(g.out.Emitted, s.Name)
	}
}

// conversion describes how one C type crosses the cgo boundary.
type conversion struct {
	goType  string
	cstring bool
	toC     func(expr string) string
	fromC   func(expr string) string
}

func identity(expr string) string { return expr }

type scalar struct {
	goType string
	cName  string
	// byValue types have platform dependent widths; pointers to them are not mapped.
	byValue bool
}

var cScalars = map[string]scalar{
	"char":               {"int8", "char", false},
	"signed char":        {"int8", "schar", false},
	"unsigned char":      {"uint8", "uchar", false},
	"short":              {"int16", "short", false},
	"unsigned short":     {"uint16", "ushort", false},
	"int":                {"int32", "int", false},
	"signed":             {"int32", "int", false},
	"signed int":         {"int32", "int", false},
	"unsigned":           {"uint32", "uint", false},
	"unsigned int":       {"uint32", "uint", false},
	"long":               {"int64", "long", true},
	"unsigned long":      {"uint64", "ulong", true},
	"long long":          {"int64", "longlong", false},
	"unsigned long long": {"uint64", "ulonglong", false},
	"float":              {"float32", "float", false},
	"double":             {"float64", "double", false},
	"bool":               {"bool", "bool", false},
	"_Bool":              {"bool", "bool", false},
	"size_t":             {"uint64", "size_t", true},
	"int8_t":             {"int8", "int8_t", false},
	"int16_t":            {"int16", "int16_t", false},
	"int32_t":            {"int32", "int32_t", false},
	"int64_t":            {"int64", "int64_t", false},
	"uint8_t":            {"uint8", "uint8_t", false},
	"uint16_t":           {"uint16", "uint16_t", false},
	"uint32_t":           {"uint32", "uint32_t", false},
	"uint64_t":           {"uint64", "uint64_t", false},
	"uintptr_t":          {"uintptr", "uintptr_t", false},
}

// convert maps a normalised C type to its Go rendering.
func (g *generator) convert(ctype string) (conversion, error) {
	if strings.ContainsAny(ctype, "()[]") {
		return conversion{}, fmt.Errorf("unsupported type %q", ctype)
	}

	var baseParts []string
	ptr := 0
	for _, f := range strings.Fields(ctype) {
		switch f {
		case "const", "volatile":
		case "*":
			ptr++
		default:
			if ptr > 0 {
				return conversion{}, fmt.Errorf("unsupported type %q", ctype)
			}
			baseParts = append(baseParts, f)
		}
	}
	base := strings.Join(baseParts, " ")
	stars := strings.Repeat("*", ptr)

	if base == "void" {
		if ptr == 0 {
			return conversion{goType: ""}, nil
		}
		return conversion{goType: strings.Repeat("*", ptr-1) + "unsafe.Pointer", toC: identity, fromC: identity}, nil
	}

	if base == "char" && ptr == 1 {
		return conversion{
			goType:  "string",
			cstring: true,
			fromC:   func(e string) string { return "C.GoString(" + e + ")" },
		}, nil
	}

	if sc, ok := cScalars[base]; ok {
		if ptr == 0 {
			return conversion{
				goType: sc.goType,
				toC:    func(e string) string { return "C." + sc.cName + "(" + e + ")" },
				fromC:  func(e string) string { return sc.goType + "(" + e + ")" },
			}, nil
		}
		if sc.byValue || base == "char" {
			return conversion{}, fmt.Errorf("unsupported pointer type %q", ctype)
		}
		return pointerConversion(stars, sc.goType, sc.cName), nil
	}

	t := g.lookupType(base)
	if t == nil {
		if ptr == 1 {
			cref := base
			if m := taggedRe.FindStringSubmatch(base); m != nil {
				cref = m[1] + "_" + m[2]
			}
			return conversion{
				goType: "unsafe.Pointer",
				toC:    func(e string) string { return "(*C." + cref + ")(" + e + ")" },
				fromC:  func(e string) string { return "unsafe.Pointer(" + e + ")" },
			}, nil
		}
		return conversion{}, fmt.Errorf("unknown type %q", base)
	}

	if t.alias {
		return conversion{goType: stars + t.goName, toC: identity, fromC: identity}, nil
	}

	goName := t.goName
	if t.form == FormEnum && g.opts.EnumStyle == EnumConsts {
		goName = "int32"
	}

	if ptr > 0 {
		return pointerConversion(stars, goName, t.cref), nil
	}

	if (t.form == FormStruct || t.form == FormUnion) && !t.complete() {
		return conversion{}, fmt.Errorf("opaque type %q passed by value", base)
	}

	return conversion{
		goType: goName,
		toC:    func(e string) string { return "C." + t.cref + "(" + e + ")" },
		fromC:  func(e string) string { return goName + "(" + e + ")" },
	}, nil
}

func (t *goType) complete() bool {
	if t.target != nil {
		return t.target.sym.Complete
	}
	return t.sym.Complete
}

func pointerConversion(stars, goElem, cElem string) conversion {
	return conversion{
		goType: stars + goElem,
		toC:    func(e string) string { return "(" + stars + "C." + cElem + ")(unsafe.Pointer(" + e + "))" },
		fromC:  func(e string) string { return "(" + stars + goElem + ")(unsafe.Pointer(" + e + "))" },
	}
}

func (g *generator) lookupType(base string) *goType {
	if t, ok := g.tagged[base]; ok {
		return t
	}
	if t, ok := g.idents[base]; ok {
		return t
	}
	return nil
}

var reservedParams = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
	"C": true, "unsafe": true, "fmt": true, "ret": true, "string": true, "bool": true,
	"int8": true, "int16": true, "int32": true, "int64": true, "uint8": true,
	"uint16": true, "uint32": true, "uint64": true, "uintptr": true,
	"float32": true, "float64": true, "nil": true, "true": true, "false": true,
}

var csVarRe = regexp.MustCompile(`^cs\d+$`)

func paramNames(params []Param) []string {
	names := make([]string, len(params))
	seen := make(map[string]bool)
	for i, p := range params {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("p%d", i)
		}
		for reservedParams[name] || csVarRe.MatchString(name) || seen[name] {
			name += "_"
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

func (g *generator) function(fn Symbol) error {
	if fn.Variadic {
		return fmt.Errorf("variadic")
	}

	res, err := g.convert(fn.Result)
	if err != nil {
		return fmt.Errorf("result: %w", err)
	}

	names := paramNames(fn.Params)
	var sig, args, prologue []string
	for i, p := range fn.Params {
		c, err := g.convert(p.Type)
		if err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
		if c.goType == "" {
			return fmt.Errorf("parameter %d: void", i)
		}
		sig = append(sig, names[i]+" "+c.goType)
		if c.cstring {
			tmp := fmt.Sprintf("cs%d", i)
			prologue = append(prologue,
				fmt.Sprintf("\t%s := C.CString(%s)", tmp, names[i]),
				fmt.Sprintf("\tdefer C.free(unsafe.Pointer(%s))", tmp))
			args = append(args, tmp)
			continue
		}
		args = append(args, c.toC(names[i]))
	}

	goName := g.name(fn.Name)
	g.p("// %s wraps %s.\nfunc %s(%s) %s {\n", goName, fn.Name, goName, strings.Join(sig, ", "), res.goType)
	for _, line := range prologue {
		g.p("%s\n", line)
	}
	call := fmt.Sprintf("C.%s(%s)", fn.Name, strings.Join(args, ", "))
	if res.goType == "" {
		g.p("\t%s\n}\n\n", call)
	} else {
		g.p("\tret := %s\n\treturn %s\n}\n\n", call, res.fromC("ret"))
	}
	return nil
}
