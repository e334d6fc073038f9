package provider

import "strings"

// JoinEndpoint joins a base URL and a path with exactly one '/' between them,
// whatever slashes either side already carries.
func JoinEndpoint(base, path string) string {
	base = strings.TrimRight(base, "/")
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return base
	}
	return base + "/" + path
}
