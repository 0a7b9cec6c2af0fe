package vaxel

import (
	"bytes"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBuildSettingOrDefault(t *testing.T) {
	var bi = &debug.BuildInfo{ //nolint:exhaustruct
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}},
	}

	assert.Equal(t, "abc123", getBuildSettingOrDefault(bi, "vcs.revision", "UNKNOWN"))
	assert.Equal(t, "UNKNOWN", getBuildSettingOrDefault(bi, "vcs.time", "UNKNOWN"))
	assert.Equal(t, "x", getBuildSettingOrDefault(nil, "vcs.time", "x"))
}

func TestPrintVersion(t *testing.T) {
	var b bytes.Buffer
	PrintVersion(&b, false)
	assert.Contains(t, b.String(), "vaxel - Version")
}
