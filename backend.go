package ggmlbuild

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Backend identifies a ggml execution backend.
type Backend int

// Known backends. BackendCPU is always enabled; the rest are opt-in and
// independent of each other.
const (
	BackendCPU Backend = iota
	BackendCUDA
	BackendHIP
	BackendMUSA
	BackendVulkan
	BackendWebGPU
	BackendMetal
	BackendOpenCL
	BackendSYCL
)

// FeatureEnvPrefix is the prefix of the per-backend presence variables,
// e.g. GGML_BUILD_FEATURE_CUDA.
const FeatureEnvPrefix = "GGML_BUILD_FEATURE_"

type backendInfo struct {
	backend Backend
	feature string // caller-facing feature name
	toggle  string // cmake option
	library string // static library produced by the native build
}

// optionalBackends is the declared order of opt-in backends. The order drives
// the cmake define list and the link directive list.
var optionalBackends = []backendInfo{
	{BackendCUDA, "cuda", "GGML_CUDA", "ggml-cuda"},
	{BackendHIP, "hip", "GGML_HIP", "ggml-hip"},
	{BackendMUSA, "musa", "GGML_MUSA", "ggml-musa"},
	{BackendVulkan, "vulkan", "GGML_VULKAN", "ggml-vulkan"},
	{BackendWebGPU, "webgpu", "GGML_WEBGPU", "ggml-webgpu"},
	{BackendMetal, "metal", "GGML_METAL", "ggml-metal"},
	{BackendOpenCL, "opencl", "GGML_OPENCL", "ggml-opencl"},
	{BackendSYCL, "sycl", "GGML_SYCL", "ggml-sycl"},
}

func (b Backend) info() (backendInfo, bool) {
	for _, info := range optionalBackends {
		if info.backend == b {
			return info, true
		}
	}
	return backendInfo{}, false
}

// String returns the feature name of the backend.
func (b Backend) String() string {
	if b == BackendCPU {
		return "cpu"
	}
	if info, ok := b.info(); ok {
		return info.feature
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// CMakeToggle returns the cmake option controlling the backend, or "" for the CPU backend.
func (b Backend) CMakeToggle() string {
	info, _ := b.info()
	return info.toggle
}

// Library returns the static library the native build produces for the backend.
func (b Backend) Library() string {
	if b == BackendCPU {
		return "ggml-cpu"
	}
	info, _ := b.info()
	return info.library
}

// OptionalBackends lists every opt-in backend in declared order.
func OptionalBackends() []Backend {
	out := make([]Backend, len(optionalBackends))
	for i, info := range optionalBackends {
		out[i] = info.backend
	}
	return out
}

// ParseBackend maps a feature name to a Backend. Matching is case-insensitive.
func ParseBackend(name string) (Backend, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "cpu" {
		return BackendCPU, true
	}
	for _, info := range optionalBackends {
		if info.feature == name {
			return info.backend, true
		}
	}
	return 0, false
}

// BackendSet is the resolved, immutable set of enabled backends.
type BackendSet struct {
	enabled uint32
}

// NewBackendSet returns a set with CPU and the given backends enabled.
func NewBackendSet(backends ...Backend) BackendSet {
	var s BackendSet
	for _, b := range backends {
		s.enabled |= 1 << uint(b)
	}
	return s
}

// Enabled reports whether b is part of the set. CPU is always enabled.
func (s BackendSet) Enabled(b Backend) bool {
	if b == BackendCPU {
		return true
	}
	return s.enabled&(1<<uint(b)) != 0
}

// Accelerators returns the enabled opt-in backends in declared order.
func (s BackendSet) Accelerators() []Backend {
	var out []Backend
	for _, info := range optionalBackends {
		if s.Enabled(info.backend) {
			out = append(out, info.backend)
		}
	}
	return out
}

// String renders the set as a comma separated feature list starting with cpu.
func (s BackendSet) String() string {
	names := []string{BackendCPU.String()}
	for _, b := range s.Accelerators() {
		names = append(names, b.String())
	}
	return strings.Join(names, ",")
}

// FeatureLookup reports whether a feature flag is present.
//
// Only presence matters: a flag set to "0", "false" or "" still counts as
// present and enables its backend.
type FeatureLookup func(feature string) bool

// ResolveBackends builds the BackendSet for one build invocation.
//
// CPU is forced on. Every opt-in backend is enabled exactly when lookup
// reports its feature name present; no backend implies another. Resolution
// never fails.
func ResolveBackends(lookup FeatureLookup) BackendSet {
	var s BackendSet
	if lookup == nil {
		return s
	}
	for _, info := range optionalBackends {
		if lookup(info.feature) {
			s.enabled |= 1 << uint(info.backend)
		}
	}
	return s
}

// FeatureList is a FeatureLookup over an explicit list of feature names.
// Unknown names are ignored.
func FeatureList(features []string) FeatureLookup {
	set := make(map[string]struct{}, len(features))
	for _, f := range features {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return func(feature string) bool {
		_, ok := set[feature]
		return ok
	}
}

// FeatureEnv is a FeatureLookup over GGML_BUILD_FEATURE_<NAME> variables.
// A nil lookupEnv falls back to os.LookupEnv.
func FeatureEnv(lookupEnv func(string) (string, bool)) FeatureLookup {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	return func(feature string) bool {
		_, ok := lookupEnv(FeatureEnvPrefix + strings.ToUpper(feature))
		return ok
	}
}

// AnyFeature combines lookups; a feature is present if any lookup reports it.
func AnyFeature(lookups ...FeatureLookup) FeatureLookup {
	return func(feature string) bool {
		for _, l := range lookups {
			if l != nil && l(feature) {
				return true
			}
		}
		return false
	}
}

// UnknownFeatures returns the names in features that match no backend, sorted.
func UnknownFeatures(features []string) []string {
	var unknown []string
	for _, f := range features {
		if strings.TrimSpace(f) == "" {
			continue
		}
		if _, ok := ParseBackend(f); !ok {
			unknown = append(unknown, f)
		}
	}
	sort.Strings(unknown)
	return unknown
}
