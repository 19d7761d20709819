package docker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/pkg/jsonmessage"
)

// drainPullStream reads every progress event of an image pull.
// It returns the first error event the engine reported, or a decode error
// when the stream is truncated or malformed.
func drainPullStream(r io.Reader) (*PullResult, error) {
	dec := json.NewDecoder(r)
	result := &PullResult{}
	layers := map[string]struct{}{}

	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read pull stream: %w", err)
		}

		if msg.Error != nil {
			return nil, msg.Error
		}

		if msg.ID != "" && msg.Progress != nil {
			layers[msg.ID] = struct{}{}
		}
		if msg.Status != "" {
			result.Status = msg.Status
			if digest, ok := strings.CutPrefix(msg.Status, "Digest: "); ok {
				result.Digest = digest
			}
		}
	}

	result.Layers = len(layers)
	return result, nil
}
