package docker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainPullStream_Success(t *testing.T) {
	stream := strings.Join([]string{
		`{"status":"Pulling from library/nginx","id":"alpine"}`,
		`{"status":"Downloading","progressDetail":{"current":10,"total":100},"progress":"[=>   ]","id":"a1"}`,
		`{"status":"Downloading","progressDetail":{"current":50,"total":100},"progress":"[==>  ]","id":"a1"}`,
		`{"status":"Extracting","progressDetail":{"current":5,"total":9},"progress":"[=>   ]","id":"b2"}`,
		`{"status":"Pull complete","progressDetail":{},"id":"b2"}`,
		`{"status":"Digest: sha256:abc123"}`,
		`{"status":"Status: Downloaded newer image for nginx:alpine"}`,
	}, "\n")

	result, err := drainPullStream(strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, "Status: Downloaded newer image for nginx:alpine", result.Status)
	assert.Equal(t, "sha256:abc123", result.Digest)
	assert.Equal(t, 2, result.Layers)
}

func TestDrainPullStream_Empty(t *testing.T) {
	result, err := drainPullStream(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, result.Status)
	assert.Zero(t, result.Layers)
}

func TestDrainPullStream_ErrorEvent(t *testing.T) {
	stream := `{"status":"Pulling from library/nginx","id":"missing"}
{"errorDetail":{"message":"manifest for nginx:missing not found"},"error":"manifest for nginx:missing not found"}
{"status":"never read"}`

	_, err := drainPullStream(strings.NewReader(stream))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest for nginx:missing not found")
}

func TestDrainPullStream_Truncated(t *testing.T) {
	stream := `{"status":"Downloading","id":"a1"}
{"status":"Downl`

	_, err := drainPullStream(strings.NewReader(stream))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read pull stream")
}
