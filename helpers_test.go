package ggmlbuild

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestBuildError(t *testing.T) {
	cause := errors.New("exit status 2")

	err := BuildError("CMake configure", []string{"line one", "  line two", ""}, cause)
	assert.True(t, errors.Is(err, ErrNativeBuild))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "CMake configure: native build failed: exit status 2\n\nBuild output:\nline one\n  line two", err.Error())

	err = BuildError("CMake find", nil, nil)
	assert.Equal(t, "CMake find: native build failed", err.Error())
	assert.True(t, errors.Is(err, ErrNativeBuild))
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(""))
	assert.Nil(t, splitLines("\n"))
	assert.Equal(t, []string{"a", "", "b"}, splitLines("a\n\nb\n"))
}

func TestUniqueStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, uniqueStrings([]string{"a", "", "b", "a"}))
}
