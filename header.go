package ggmlbuild

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SymbolKind is the allowlist category of a native symbol.
type SymbolKind int

// Symbol categories.
const (
	SymbolFunction SymbolKind = iota
	SymbolType
	SymbolConstant
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolFunction:
		return "function"
	case SymbolType:
		return "type"
	case SymbolConstant:
		return "constant"
	default:
		return fmt.Sprintf("SymbolKind(%d)", int(k))
	}
}

// TypeForm distinguishes the declarations behind a SymbolType.
type TypeForm int

// Type forms.
const (
	FormStruct TypeForm = iota
	FormUnion
	FormEnum
	FormTypedef
)

// Param is one function parameter. Type is normalised C, e.g.
// "const struct ggml_tensor *".
type Param struct {
	Name string
	Type string
}

// Symbol is one declaration found in the native headers.
type Symbol struct {
	Name string
	Kind SymbolKind
	File string

	// Types
	Form     TypeForm
	Tagged   bool     // referenced as "struct Name" rather than a typedef name
	Complete bool     // has a body; false for forward declarations
	Target   string   // typedef target
	Variants []string // enum variants in declaration order

	// Functions
	Result   string
	Params   []Param
	Variadic bool

	// Constants
	Value string
}

// CRef returns the cgo spelling of a type symbol without the "C." prefix.
func (s Symbol) CRef() string {
	if !s.Tagged {
		return s.Name
	}
	return s.tag() + "_" + s.Name
}

// CType returns the C spelling of a type symbol.
func (s Symbol) CType() string {
	if !s.Tagged {
		return s.Name
	}
	return s.tag() + " " + s.Name
}

func (s Symbol) tag() string {
	switch s.Form {
	case FormUnion:
		return "union"
	case FormEnum:
		return "enum"
	default:
		return "struct"
	}
}

// HeaderScanner collects the declarations reachable from an entry header.
//
// It is a declaration scanner, not a C preprocessor. Conditional blocks are
// all read and macros are not expanded. A quoted include missing from the
// search path fails the scan; angle-bracket includes that cannot be found
// are system headers and are skipped.
type HeaderScanner struct {
	IncludeDirs []string

	visited map[string]bool
	symbols []Symbol
	index   map[string]int
}

// ScanHeaders scans entry and everything it includes.
func ScanHeaders(entry string, includeDirs []string) ([]Symbol, error) {
	s := &HeaderScanner{IncludeDirs: includeDirs}
	return s.Scan(entry)
}

// Scan scans entry and everything it includes. An unreadable header, a
// missing quoted include or unbalanced declarations are ErrBindingGeneration.
func (s *HeaderScanner) Scan(entry string) ([]Symbol, error) {
	s.visited = make(map[string]bool)
	s.symbols = nil
	s.index = make(map[string]int)

	if err := s.scanFile(entry); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBindingGeneration, err)
	}
	return s.symbols, nil
}

var (
	includeRe  = regexp.MustCompile(`^#\s*include\s*([<"])([^>"]+)[>"]`)
	defineRe   = regexp.MustCompile(`^#\s*define\s+([A-Za-z_]\w*)(\(?)\s*(.*)$`)
	externCRe  = regexp.MustCompile(`extern\s*"C"\s*\{`)
	constValRe = regexp.MustCompile(`^[-+~(.0-9][\s()0-9a-fA-FxXuUlL.+\-*/<>|&~^]*$`)
	stringRe   = regexp.MustCompile(`^"([^"\\]|\\.)*"$`)
)

func (s *HeaderScanner) scanFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if s.visited[abs] {
		return nil
	}
	s.visited[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		return err
	}

	text := strings.ReplaceAll(stripComments(string(data)), "\\\n", " ")

	var body strings.Builder
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			body.WriteString(line)
			body.WriteByte('\n')
			continue
		}

		if m := includeRe.FindStringSubmatch(trimmed); m != nil {
			quoted := m[1] == `"`
			inc, ok := s.resolveInclude(filepath.Dir(abs), m[2], quoted)
			if !ok {
				if quoted {
					return fmt.Errorf("%s: include %q not found", abs, m[2])
				}
				continue
			}
			if err := s.scanFile(inc); err != nil {
				return err
			}
			continue
		}

		if m := defineRe.FindStringSubmatch(trimmed); m != nil && m[2] == "" {
			value := strings.TrimSpace(m[3])
			if constValRe.MatchString(value) && strings.ContainsAny(value, "0123456789") || stringRe.MatchString(value) {
				s.add(Symbol{Name: m[1], Kind: SymbolConstant, File: abs, Value: value})
			}
		}
	}

	decls, err := splitDeclarations(externCRe.ReplaceAllString(body.String(), " "))
	if err != nil {
		return fmt.Errorf("%s: %w", abs, err)
	}

	for _, decl := range decls {
		for _, sym := range parseDeclaration(decl) {
			sym.File = abs
			s.add(sym)
		}
	}

	return nil
}

func (s *HeaderScanner) resolveInclude(dir, name string, quoted bool) (string, bool) {
	var candidates []string
	if quoted {
		candidates = append(candidates, filepath.Join(dir, name))
	}
	for _, inc := range s.IncludeDirs {
		candidates = append(candidates, filepath.Join(inc, name))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c, true
		}
	}
	return "", false
}

// add records sym; the first declaration of a name wins except that a
// complete type replaces an earlier forward declaration.
func (s *HeaderScanner) add(sym Symbol) {
	key := fmt.Sprintf("%d/%t/%s", sym.Kind, sym.Tagged, sym.Name)
	if i, ok := s.index[key]; ok {
		if sym.Kind == SymbolType && sym.Complete && !s.symbols[i].Complete {
			s.symbols[i] = sym
		}
		return
	}
	s.index[key] = len(s.symbols)
	s.symbols = append(s.symbols, sym)
}

// stripComments removes C comments, keeping string and char literals intact.
func stripComments(src string) string {
	var out strings.Builder
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				out.WriteByte('\n')
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			i += 2
			for i+1 < len(src) && !(src[i] == '*' && src[i+1] == '/') {
				if src[i] == '\n' {
					out.WriteByte('\n')
				}
				i++
			}
			i++
			out.WriteByte(' ')
		case c == '"' || c == '\'':
			out.WriteByte(c)
			for i++; i < len(src) && src[i] != c; i++ {
				if src[i] == '\\' && i+1 < len(src) {
					out.WriteByte(src[i])
					i++
				}
				out.WriteByte(src[i])
			}
			if i < len(src) {
				out.WriteByte(c)
			}
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

// splitDeclarations splits top-level text on semicolons. Function
// definitions (a body right after a parameter list) are dropped, and a
// closing brace without an opening one (the end of an extern "C" block) is
// ignored.
func splitDeclarations(text string) ([]string, error) {
	var decls []string
	var cur strings.Builder
	braces, parens := 0, 0

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '{':
			braces++
		case '}':
			if braces == 0 {
				continue
			}
			braces--
			if braces == 0 && parens == 0 && isFunctionBody(cur.String()) {
				cur.Reset()
				continue
			}
		case '(':
			parens++
		case ')':
			parens--
			if parens < 0 {
				return nil, fmt.Errorf("unbalanced ')' near %q", tail(cur.String()))
			}
		case ';':
			if braces == 0 && parens == 0 {
				if d := normalizeSpace(cur.String()); d != "" {
					decls = append(decls, d)
				}
				cur.Reset()
				continue
			}
		}
		cur.WriteByte(c)
	}

	if braces != 0 || parens != 0 {
		return nil, fmt.Errorf("unterminated declaration near %q", tail(cur.String()))
	}
	return decls, nil
}

// isFunctionBody reports whether decl is "<signature>) { ... " i.e. the
// brace that just closed belonged to a function definition.
func isFunctionBody(decl string) bool {
	open := strings.Index(decl, "{")
	if open < 0 {
		return false
	}
	return strings.HasSuffix(strings.TrimSpace(decl[:open]), ")")
}

func tail(s string) string {
	s = normalizeSpace(s)
	if len(s) > 40 {
		return s[len(s)-40:]
	}
	return s
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	apiMacroRe    = regexp.MustCompile(`^(?:[A-Z][A-Z0-9_]*_(?:API|CALL)|extern|GGML_CALL)\s+`)
	deprecatedRe  = regexp.MustCompile(`^[A-Z][A-Z0-9_]*_DEPRECATED\s*\((.*),\s*"(?:[^"\\]|\\.)*"\s*\)$`)
	attrCallRe    = regexp.MustCompile(`(?:__attribute__|__declspec|\b[A-Z][A-Z0-9_]*_ATTRIBUTE_[A-Z0-9_]*)\s*\(`)
	attrWordRe    = regexp.MustCompile(`\b[A-Z][A-Z0-9_]*_(?:RESTRICT|NORETURN|UNUSED|PACKED)\b|\brestrict\b|\b__restrict\b`)
	fnPtrNameRe   = regexp.MustCompile(`\(\s*\*\s*([A-Za-z_]\w*)\s*\)`)
	aggregateRe   = regexp.MustCompile(`^(struct|union|enum)\s*([A-Za-z_]\w*)?\s*(\{.*\})?\s*([A-Za-z_]\w*)?\s*(\[[^\]]*\])?$`)
	funcPtrTdefRe = regexp.MustCompile(`^.*\(\s*\*\s*([A-Za-z_]\w*)\s*\)\s*\(.*\)$`)
	identRe       = regexp.MustCompile(`^[A-Za-z_]\w*$`)
)

// cleanDeclaration strips attributes, deprecation wrappers and API macros
// until none is left, in whatever order they appear.
func cleanDeclaration(decl string) string {
	for {
		next := normalizeSpace(attrWordRe.ReplaceAllString(removeAttributeCalls(decl), " "))
		if m := deprecatedRe.FindStringSubmatch(next); m != nil {
			next = strings.TrimSpace(m[1])
		}
		next = apiMacroRe.ReplaceAllString(next, "")
		if next == decl {
			return decl
		}
		decl = next
	}
}

// removeAttributeCalls drops __attribute__((...)) and similar macro calls,
// including their balanced argument lists.
func removeAttributeCalls(decl string) string {
	for {
		loc := attrCallRe.FindStringIndex(decl)
		if loc == nil {
			return decl
		}
		depth, end := 0, len(decl)
		for i := loc[1] - 1; i < len(decl); i++ {
			if decl[i] == '(' {
				depth++
			} else if decl[i] == ')' {
				depth--
				if depth == 0 {
					end = i + 1
					break
				}
			}
		}
		decl = decl[:loc[0]] + " " + decl[end:]
	}
}

// parseDeclaration turns one top-level declaration into symbols.
func parseDeclaration(decl string) []Symbol {
	decl = cleanDeclaration(decl)

	if rest, ok := strings.CutPrefix(decl, "typedef "); ok {
		return parseTypedef(rest)
	}

	if m := aggregateRe.FindStringSubmatch(decl); m != nil {
		if m[2] == "" {
			return nil
		}
		sym := aggregateSymbol(m[1], m[2], m[3], true)
		return []Symbol{sym}
	}

	if strings.HasPrefix(decl, "static ") || strings.ContainsAny(decl, "{=") {
		return nil
	}

	if fn, ok := parseFunction(decl); ok {
		return []Symbol{fn}
	}
	return nil
}

func aggregateSymbol(tag, name, body string, tagged bool) Symbol {
	sym := Symbol{Name: name, Kind: SymbolType, Tagged: tagged, Complete: body != ""}
	switch tag {
	case "union":
		sym.Form = FormUnion
	case "enum":
		sym.Form = FormEnum
		sym.Variants = enumVariants(body)
	default:
		sym.Form = FormStruct
	}
	return sym
}

func parseTypedef(rest string) []Symbol {
	if m := funcPtrTdefRe.FindStringSubmatch(rest); m != nil {
		return []Symbol{{Name: m[1], Kind: SymbolType, Form: FormTypedef, Target: rest}}
	}

	if m := aggregateRe.FindStringSubmatch(rest); m != nil && m[4] != "" {
		tag, name, body, alias := m[1], m[2], m[3], m[4]
		switch {
		case name == "":
			// typedef struct { ... } alias;
			return []Symbol{aggregateSymbol(tag, alias, body, false)}
		case body == "":
			return []Symbol{
				aggregateSymbol(tag, name, "", true),
				{Name: alias, Kind: SymbolType, Form: FormTypedef, Target: tag + " " + name},
			}
		default:
			return []Symbol{
				aggregateSymbol(tag, name, body, true),
				{Name: alias, Kind: SymbolType, Form: FormTypedef, Target: tag + " " + name},
			}
		}
	}

	fields := strings.Fields(strings.ReplaceAll(rest, "*", " * "))
	if len(fields) < 2 {
		return nil
	}
	alias := fields[len(fields)-1]
	if i := strings.Index(alias, "["); i > 0 {
		alias = alias[:i]
	}
	if !identRe.MatchString(alias) {
		return nil
	}
	target := strings.Join(fields[:len(fields)-1], " ")
	return []Symbol{{Name: alias, Kind: SymbolType, Form: FormTypedef, Target: target}}
}

func enumVariants(body string) []string {
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "{")
	body = strings.TrimSuffix(body, "}")

	var variants []string
	for _, part := range splitTopLevel(body) {
		name, _, _ := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if identRe.MatchString(name) {
			variants = append(variants, name)
		}
	}
	return variants
}

// splitTopLevel splits on commas outside parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(s[start:]); last != "" {
		parts = append(parts, last)
	}
	return parts
}

func parseFunction(decl string) (Symbol, bool) {
	if !strings.HasSuffix(decl, ")") {
		return Symbol{}, false
	}

	// Find the parameter list: the balanced group ending the declaration.
	depth := 0
	open := -1
	for i := len(decl) - 1; i >= 0; i-- {
		if decl[i] == ')' {
			depth++
		} else if decl[i] == '(' {
			depth--
			if depth == 0 {
				open = i
				break
			}
		}
	}
	if open <= 0 {
		return Symbol{}, false
	}

	head := strings.TrimSpace(decl[:open])
	if strings.ContainsAny(head, "()") {
		// function pointer variable or macro invocation
		return Symbol{}, false
	}

	head = strings.ReplaceAll(head, "*", " * ")
	fields := strings.Fields(head)
	if len(fields) < 2 {
		return Symbol{}, false
	}
	name := fields[len(fields)-1]
	if !identRe.MatchString(name) {
		return Symbol{}, false
	}

	fn := Symbol{
		Name:   name,
		Kind:   SymbolFunction,
		Result: normalizeType(strings.Join(fields[:len(fields)-1], " ")),
	}

	params := splitTopLevel(decl[open+1 : len(decl)-1])
	if len(params) == 1 && strings.TrimSpace(params[0]) == "void" {
		params = nil
	}
	for _, p := range params {
		if p == "..." {
			fn.Variadic = true
			continue
		}
		fn.Params = append(fn.Params, parseParam(p))
	}

	return fn, true
}

var scalarKeywords = map[string]bool{
	"void": true, "char": true, "short": true, "int": true, "long": true,
	"float": true, "double": true, "signed": true, "unsigned": true,
	"bool": true, "_Bool": true, "const": true, "volatile": true,
}

func parseParam(p string) Param {
	if strings.Contains(p, "(") {
		// function pointer parameter: keep the declaration as the type
		name := ""
		if m := fnPtrNameRe.FindStringSubmatch(p); m != nil {
			name = m[1]
		}
		return Param{Name: name, Type: normalizeSpace(p)}
	}

	array := false
	if i := strings.Index(p, "["); i >= 0 {
		p = p[:i]
		array = true
	}

	fields := strings.Fields(strings.ReplaceAll(p, "*", " * "))
	var name string
	if n := len(fields); n >= 2 {
		last, prev := fields[n-1], fields[n-2]
		if identRe.MatchString(last) && !scalarKeywords[last] && prev != "struct" && prev != "enum" && prev != "union" {
			name = last
			fields = fields[:n-1]
		}
	}

	typ := strings.Join(fields, " ")
	if array {
		typ += " *"
	}
	return Param{Name: name, Type: normalizeType(typ)}
}

// normalizeType spaces out pointer stars: "const char*" -> "const char *".
func normalizeType(t string) string {
	return normalizeSpace(strings.ReplaceAll(t, "*", " * "))
}
