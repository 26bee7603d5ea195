package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "dev (unknown, built unknown)", String())
}

func TestString_Stamped(t *testing.T) {
	old := [3]string{Version, GitSHA, BuildTime}
	t.Cleanup(func() { Version, GitSHA, BuildTime = old[0], old[1], old[2] })

	Version, GitSHA, BuildTime = "v0.3.0", "1a2b3c4", "2026-03-01T12:00:00Z"
	assert.Equal(t, "v0.3.0 (1a2b3c4, built 2026-03-01T12:00:00Z)", String())
}
