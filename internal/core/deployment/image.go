package deployment

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"
)

// =============================================================================
// Image Reference Functions
// =============================================================================

// ImageReference assembles "registryHost/repo:version".
// An empty registryHost leaves the repository unqualified (Docker Hub).
//
// Example:
//
//	ImageReference("registry.example.com", "library/nginx", "alpine")
//	// returns "registry.example.com/library/nginx:alpine"
func ImageReference(registryHost, repo, version string) string {
	ref := strings.TrimPrefix(repo, "/")
	if host := strings.TrimSuffix(registryHost, "/"); host != "" {
		ref = host + "/" + ref
	}
	if version != "" {
		ref += ":" + version
	}
	return ref
}

// RegistryServer returns the registry address of ref: its first path segment
// when that segment names a host (contains '.' or ':' or is "localhost").
// Unqualified references return "" and the engine falls back to Docker Hub.
//
// Example:
//
//	RegistryServer("registry.example.com:5000/app/api:1.2") // "registry.example.com:5000"
//	RegistryServer("library/nginx:alpine")                  // ""
func RegistryServer(ref string) string {
	first, _, found := strings.Cut(ref, "/")
	if !found {
		return ""
	}
	if strings.ContainsAny(first, ".:") || first == "localhost" {
		return first
	}
	return ""
}

// ValidateImageReference checks that ref is a well-formed image reference.
func ValidateImageReference(ref string) error {
	if _, err := reference.ParseNormalizedNamed(ref); err != nil {
		return fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	return nil
}
