package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// ParseVolume Tests
// =============================================================================

func TestParseVolume(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected VolumePlan
		ok       bool
	}{
		{"read-write", "/host:/container", VolumePlan{Source: "/host", Target: "/container"}, true},
		{"read-only", "/host:/container:ro", VolumePlan{Source: "/host", Target: "/container", ReadOnly: true}, true},
		{"explicit rw", "/host:/container:rw", VolumePlan{Source: "/host", Target: "/container"}, true},
		{"unknown mode is rw", "/host:/container:z", VolumePlan{Source: "/host", Target: "/container"}, true},
		{"named volume", "data:/var/lib/data", VolumePlan{Source: "data", Target: "/var/lib/data"}, true},
		{"single segment", "/onlyone", VolumePlan{}, false},
		{"empty", "", VolumePlan{}, false},
		{"empty target", "/host:", VolumePlan{}, false},
		{"empty source", ":/container", VolumePlan{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := ParseVolume(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestParseVolumes_CollectsDropped(t *testing.T) {
	mounts, dropped := ParseVolumes([]string{"/a:/b", "/onlyone", "/c:/d:ro"})

	assert.Len(t, mounts, 2)
	assert.Equal(t, []string{"/onlyone"}, dropped)
}

func TestParseVolumes_Nil(t *testing.T) {
	mounts, dropped := ParseVolumes(nil)
	assert.Empty(t, mounts)
	assert.Empty(t, dropped)
}

// =============================================================================
// ParseEnv Tests
// =============================================================================

func TestParseEnv(t *testing.T) {
	env, dropped := ParseEnv([]string{"FOO=bar", "FOOBAR", "URL=http://x?a=b", ""})

	assert.Equal(t, []string{"FOO=bar", "URL=http://x?a=b"}, env)
	assert.Equal(t, []string{"FOOBAR", ""}, dropped)
}
