package ggmlbuild

import (
	"fmt"
	"regexp"
)

// AllowlistRule admits symbols of one kind whose name fully matches Pattern.
type AllowlistRule struct {
	Kind    SymbolKind
	Pattern string
}

// DefaultAllowlist keeps the binding surface to the ggml and gguf APIs.
// New namespaces are added as rows.
var DefaultAllowlist = []AllowlistRule{
	{SymbolFunction, `ggml_.*`},
	{SymbolFunction, `gguf_.*`},
	{SymbolType, `ggml_.*`},
	{SymbolType, `gguf_.*`},
	{SymbolConstant, `GGML_.*`},
	{SymbolConstant, `GGUF_.*`},
}

// Allowlist is a compiled, closed set of rules: a symbol matching no rule of
// its kind is excluded.
type Allowlist struct {
	rules map[SymbolKind][]*regexp.Regexp
}

// CompileAllowlist compiles rules. Patterns are anchored at both ends.
func CompileAllowlist(rules []AllowlistRule) (*Allowlist, error) {
	a := &Allowlist{rules: make(map[SymbolKind][]*regexp.Regexp)}
	for _, r := range rules {
		re, err := regexp.Compile(`^(?:` + r.Pattern + `)$`)
		if err != nil {
			return nil, fmt.Errorf("allowlist %s pattern %q: %w", r.Kind, r.Pattern, err)
		}
		a.rules[r.Kind] = append(a.rules[r.Kind], re)
	}
	return a, nil
}

// Allows reports whether s matches a rule of its kind.
func (a *Allowlist) Allows(s Symbol) bool {
	for _, re := range a.rules[s.Kind] {
		if re.MatchString(s.Name) {
			return true
		}
	}
	return false
}

// Filter returns the symbols allowed by a, in their original order.
func Filter(symbols []Symbol, a *Allowlist) []Symbol {
	var out []Symbol
	for _, s := range symbols {
		if a.Allows(s) {
			out = append(out, s)
		}
	}
	return out
}
