package deployment

import "strings"

// =============================================================================
// Volume and Environment Parsing
// =============================================================================

// ParseVolume parses "hostPath:containerPath[:mode]".
// A mode of "ro" makes the mount read-only; any other mode, or none, is read-write.
// The second return value is false for strings with fewer than two non-empty
// path segments.
//
// Example:
//
//	ParseVolume("/data:/var/lib/data")    // {Source: "/data", Target: "/var/lib/data"}, true
//	ParseVolume("/data:/var/lib/data:ro") // {..., ReadOnly: true}, true
//	ParseVolume("/onlyone")               // {}, false
func ParseVolume(spec string) (VolumePlan, bool) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return VolumePlan{}, false
	}

	return VolumePlan{
		Source:   parts[0],
		Target:   parts[1],
		ReadOnly: len(parts) > 2 && parts[2] == "ro",
	}, true
}

// ParseVolumes parses every volume string, returning the mounts and the
// strings that could not be parsed.
func ParseVolumes(specs []string) (mounts []VolumePlan, dropped []string) {
	for _, spec := range specs {
		v, ok := ParseVolume(spec)
		if !ok {
			dropped = append(dropped, spec)
			continue
		}
		mounts = append(mounts, v)
	}
	return mounts, dropped
}

// ParseEnv keeps lines containing a literal '=' and returns the rest as dropped.
func ParseEnv(lines []string) (env []string, dropped []string) {
	for _, line := range lines {
		if !strings.Contains(line, "=") {
			dropped = append(dropped, line)
			continue
		}
		env = append(env, line)
	}
	return env, dropped
}
