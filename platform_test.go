package ggmlbuild

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformFamily(t *testing.T) {
	tests := []struct {
		platform Platform
		family   Family
		goos     string
	}{
		{"linux", FamilyPOSIX, "linux"},
		{"freebsd", FamilyPOSIX, "freebsd"},
		{"openbsd", FamilyPOSIX, "openbsd"},
		{"darwin", FamilyApple, "darwin"},
		{"macos", FamilyApple, "darwin"},
		{"MacOS", FamilyApple, "darwin"},
		{"ios", FamilyApple, "ios"},
		{"tvos", FamilyApple, ""},
		{"android", FamilyAndroid, "android"},
		{"windows", FamilyWindows, "windows"},
		{"plan9", FamilyUnknown, ""},
		{"", FamilyUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			assert.Equal(t, tt.family, tt.platform.Family())
			assert.Equal(t, tt.goos, tt.platform.GOOS())
		})
	}
}

func TestHostPlatform(t *testing.T) {
	assert.Equal(t, Platform(runtime.GOOS), HostPlatform())
	assert.Equal(t, "unknown", FamilyUnknown.String())
	assert.Equal(t, "posix", FamilyPOSIX.String())
}
