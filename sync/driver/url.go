package driver

import "strings"

// IsTarArtifactURL reports whether the URL plausibly points at a
// fetchable tar artifact. Only http(s) sources qualify; VCS remotes
// and local paths do not.
func IsTarArtifactURL(url string) bool {
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return false
	}
	return strings.Contains(url, ".tar") ||
		strings.HasSuffix(url, ".crate") ||
		strings.HasSuffix(url, ".tgz")
}
