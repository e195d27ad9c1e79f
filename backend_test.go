package ggmlbuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBackends(t *testing.T) {
	tests := []struct {
		name     string
		features []string
		want     []Backend
	}{
		{"none", nil, nil},
		{"cuda only", []string{"cuda"}, []Backend{BackendCUDA}},
		{"case and spaces", []string{" Vulkan ", "METAL"}, []Backend{BackendVulkan, BackendMetal}},
		{"declared order", []string{"sycl", "cuda", "webgpu"}, []Backend{BackendCUDA, BackendWebGPU, BackendSYCL}},
		{"unknown ignored", []string{"tpu", "hip"}, []Backend{BackendHIP}},
		{"cpu is implicit", []string{"cpu"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveBackends(FeatureList(tt.features))
			assert.True(t, got.Enabled(BackendCPU))
			assert.Equal(t, tt.want, got.Accelerators())
		})
	}
}

func TestResolveBackendsNoImplication(t *testing.T) {
	got := ResolveBackends(FeatureList([]string{"cuda"}))
	for _, b := range OptionalBackends() {
		assert.Equal(t, b == BackendCUDA, got.Enabled(b), b.String())
	}
}

func TestResolveBackendsNilLookup(t *testing.T) {
	got := ResolveBackends(nil)
	assert.True(t, got.Enabled(BackendCPU))
	assert.Empty(t, got.Accelerators())
	assert.Equal(t, "cpu", got.String())
}

func TestFeatureEnvPresenceOnly(t *testing.T) {
	env := map[string]string{
		"GGML_BUILD_FEATURE_CUDA":   "0",
		"GGML_BUILD_FEATURE_VULKAN": "",
		"GGML_BUILD_FEATURE_METAL":  "false",
		"GGML_FEATURE_HIP":          "1",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	got := ResolveBackends(FeatureEnv(lookup))
	assert.Equal(t, []Backend{BackendCUDA, BackendVulkan, BackendMetal}, got.Accelerators())
	assert.Equal(t, "cpu,cuda,vulkan,metal", got.String())
}

func TestFeatureEnvFromProcess(t *testing.T) {
	t.Setenv("GGML_BUILD_FEATURE_OPENCL", "")

	got := ResolveBackends(FeatureEnv(nil))
	assert.True(t, got.Enabled(BackendOpenCL))
}

func TestAnyFeature(t *testing.T) {
	lookup := AnyFeature(FeatureList([]string{"cuda"}), nil, FeatureList([]string{"musa"}))
	got := ResolveBackends(lookup)
	assert.Equal(t, []Backend{BackendCUDA, BackendMUSA}, got.Accelerators())
}

func TestBackendCatalogue(t *testing.T) {
	assert.Equal(t, "", BackendCPU.CMakeToggle())
	assert.Equal(t, "ggml-cpu", BackendCPU.Library())

	for _, b := range OptionalBackends() {
		parsed, ok := ParseBackend(b.String())
		require.True(t, ok, b.String())
		assert.Equal(t, b, parsed)
		assert.Regexp(t, `^GGML_[A-Z]+$`, b.CMakeToggle())
		assert.Equal(t, "ggml-"+b.String(), b.Library())
	}

	_, ok := ParseBackend("tpu")
	assert.False(t, ok)
	assert.Equal(t, "Backend(42)", Backend(42).String())
}

func TestUnknownFeatures(t *testing.T) {
	assert.Equal(t, []string{"npu", "tpu"}, UnknownFeatures([]string{"tpu", "cuda", "", "npu", "CPU"}))
	assert.Empty(t, UnknownFeatures([]string{"metal"}))
}
