package ggmlbuild

import (
	"runtime"
	"strings"
)

// Platform constants
const (
	platformWindows = "windows"
	platformDarwin  = "darwin"
	platformAndroid = "android"
)

// Platform is the target operating system of a build, e.g. "linux" or
// "darwin". Go GOOS names are accepted along with "macos", "tvos" and
// "watchos".
type Platform string

// HostPlatform returns the platform the tool is running on.
func HostPlatform() Platform {
	return Platform(runtime.GOOS)
}

// Family groups platforms that share library naming and runtime
// dependencies.
type Family int

// Platform families. FamilyUnknown has no dependency table rows.
const (
	FamilyUnknown Family = iota
	FamilyPOSIX
	FamilyApple
	FamilyAndroid
	FamilyWindows
)

func (f Family) String() string {
	switch f {
	case FamilyPOSIX:
		return "posix"
	case FamilyApple:
		return "apple"
	case FamilyAndroid:
		return "android"
	case FamilyWindows:
		return "windows"
	default:
		return "unknown"
	}
}

var platformFamilies = map[string]Family{
	"linux":         FamilyPOSIX,
	"freebsd":       FamilyPOSIX,
	"netbsd":        FamilyPOSIX,
	"openbsd":       FamilyPOSIX,
	platformDarwin:  FamilyApple,
	"macos":         FamilyApple,
	"ios":           FamilyApple,
	"tvos":          FamilyApple,
	"watchos":       FamilyApple,
	platformAndroid: FamilyAndroid,
	platformWindows: FamilyWindows,
}

// Family returns the family of the platform.
func (p Platform) Family() Family {
	return platformFamilies[strings.ToLower(string(p))]
}

// GOOS returns the Go build constraint matching the platform, or "" when the
// platform has no Go equivalent.
func (p Platform) GOOS() string {
	switch name := strings.ToLower(string(p)); name {
	case "macos":
		return platformDarwin
	case "linux", "freebsd", "netbsd", "openbsd", platformDarwin, "ios", platformAndroid, platformWindows:
		return name
	default:
		return ""
	}
}

func (p Platform) String() string {
	return string(p)
}
