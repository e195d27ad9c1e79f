package ggmlbuild

import (
	"fmt"
	"path/filepath"
	"strings"
)

// LinkKind tags what a LinkDirective links.
type LinkKind int

// Link directive kinds.
const (
	LinkStatic    LinkKind = iota // static library produced by the native build
	LinkDynamic                   // system dynamic library
	LinkFramework                 // Apple framework
)

func (k LinkKind) String() string {
	switch k {
	case LinkStatic:
		return "static"
	case LinkDynamic:
		return "dylib"
	case LinkFramework:
		return "framework"
	default:
		return fmt.Sprintf("LinkKind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k LinkKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *LinkKind) UnmarshalText(text []byte) error {
	for _, kind := range []LinkKind{LinkStatic, LinkDynamic, LinkFramework} {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown link kind %q", text)
}

// LinkDirective is one library or framework to link, optionally from a
// search path.
type LinkDirective struct {
	Kind       LinkKind `yaml:"kind"`
	Name       string   `yaml:"name"`
	SearchPath string   `yaml:"search_path,omitempty"`
}

// String renders the directive in "link-lib=<kind>=<name>" form.
func (d LinkDirective) String() string {
	return fmt.Sprintf("link-lib=%s=%s", d.Kind, d.Name)
}

func static(name string) LinkDirective    { return LinkDirective{Kind: LinkStatic, Name: name} }
func dylib(name string) LinkDirective     { return LinkDirective{Kind: LinkDynamic, Name: name} }
func framework(name string) LinkDirective { return LinkDirective{Kind: LinkFramework, Name: name} }

// familyAny keys a fallback row used when a backend has no row for the
// specific family.
const familyAny Family = -1

// backendDependencies maps (backend, family) to the system dependencies that
// follow the backend's static library. A missing row means no dependency.
var backendDependencies = map[Backend]map[Family][]LinkDirective{
	BackendMetal: {
		FamilyApple: {framework("Metal"), framework("MetalKit"), framework("Foundation")},
	},
	BackendCUDA: {
		FamilyWindows: {dylib("cudart"), dylib("cublas"), dylib("nvcuda")},
		familyAny:     {dylib("cudart"), dylib("cublas"), dylib("cuda")},
	},
	BackendVulkan: {
		FamilyWindows: {dylib("vulkan-1")},
		familyAny:     {dylib("vulkan")},
	},
	BackendOpenCL: {
		FamilyApple: {framework("OpenCL")},
		familyAny:   {dylib("OpenCL")},
	},
}

// runtimeDependencies is appended once after all backend entries. Windows
// is recognised and has nothing to add; FamilyUnknown is deliberately absent.
var runtimeDependencies = map[Family][]LinkDirective{
	FamilyPOSIX:   {dylib("stdc++"), dylib("m"), dylib("pthread"), dylib("dl")},
	FamilyApple:   {dylib("c++")},
	FamilyAndroid: {dylib("c++_shared"), dylib("dl")},
	FamilyWindows: nil,
}

// coreLibraries always lead the directive list.
var coreLibraries = []string{"ggml-base", "ggml", BackendCPU.Library()}

// LinkOptions carries the search paths the planner attaches to directives.
type LinkOptions struct {
	// NativeLibDir is where the native build put its static libraries.
	NativeLibDir string
	// CUDAPath is the CUDA toolkit root. When set, CUDA runtime directives
	// search its library directory.
	CUDAPath string
}

// PlanLinkage returns the ordered link directives for a build.
//
// Order: ggml-base, ggml, ggml-cpu; then for every enabled accelerator in
// declared order its static library followed by its system dependencies for
// the platform; then the platform's runtime libraries. An unrecognised
// platform yields no platform-specific entries.
func PlanLinkage(backends BackendSet, platform Platform, opts LinkOptions) []LinkDirective {
	family := platform.Family()

	var plan []LinkDirective
	for _, lib := range coreLibraries {
		plan = append(plan, withPath(static(lib), opts.NativeLibDir))
	}

	for _, b := range backends.Accelerators() {
		plan = append(plan, withPath(static(b.Library()), opts.NativeLibDir))
		for _, dep := range lookupDependencies(b, family) {
			if b == BackendCUDA && dep.Kind == LinkDynamic {
				dep = withPath(dep, cudaLibDir(opts.CUDAPath, family))
			}
			plan = append(plan, dep)
		}
	}

	return append(plan, runtimeDependencies[family]...)
}

func lookupDependencies(b Backend, family Family) []LinkDirective {
	rows, ok := backendDependencies[b]
	if !ok {
		return nil
	}
	if deps, ok := rows[family]; ok {
		return deps
	}
	return rows[familyAny]
}

func withPath(d LinkDirective, path string) LinkDirective {
	d.SearchPath = path
	return d
}

func cudaLibDir(root string, family Family) string {
	if root == "" {
		return ""
	}
	if family == FamilyWindows {
		return filepath.Join(root, "lib", "x64")
	}
	return filepath.Join(root, "lib64")
}

// SearchDirectives renders every distinct search path of the plan in
// first-use order, as "link-search=native=<dir>" lines.
func SearchDirectives(plan []LinkDirective) []string {
	var lines []string
	seen := make(map[string]struct{})
	for _, d := range plan {
		if d.SearchPath == "" {
			continue
		}
		if _, ok := seen[d.SearchPath]; ok {
			continue
		}
		seen[d.SearchPath] = struct{}{}
		lines = append(lines, "link-search=native="+d.SearchPath)
	}
	return lines
}

// LDFlags renders the plan as cgo linker flags. A search path is emitted as
// -L right before the first directive using it. Paths inside srcDir are
// written relative to ${SRCDIR}.
func LDFlags(plan []LinkDirective, srcDir string) []string {
	var flags []string
	seen := make(map[string]struct{})
	for _, d := range plan {
		if d.SearchPath != "" {
			if _, ok := seen[d.SearchPath]; !ok {
				seen[d.SearchPath] = struct{}{}
				flags = append(flags, "-L"+cgoPath(d.SearchPath, srcDir))
			}
		}
		switch d.Kind {
		case LinkFramework:
			flags = append(flags, "-framework", d.Name)
		default:
			flags = append(flags, "-l"+d.Name)
		}
	}
	return flags
}

// cgoPath rewrites path relative to ${SRCDIR} when it lives under srcDir.
func cgoPath(path, srcDir string) string {
	if srcDir == "" {
		return filepath.ToSlash(path)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	absSrc, err := filepath.Abs(srcDir)
	if err != nil {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(absSrc, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(absPath)
	}
	if rel == "." {
		return "${SRCDIR}"
	}
	return "${SRCDIR}/" + filepath.ToSlash(rel)
}
