// Package stream holds helpers that operate on radio stream URLs.
package stream

import "strings"

const (
	secureScheme   = "https://"
	insecureScheme = "http://"
)

// Normalize upgrades an insecure stream URL to https so it can be played from a
// secure page. Secure, empty and unrecognised URLs are returned unchanged.
func Normalize(url string) string {
	if strings.HasPrefix(url, secureScheme) {
		return url
	}
	if strings.HasPrefix(url, insecureScheme) {
		return secureScheme + strings.TrimPrefix(url, insecureScheme)
	}
	return url
}

// IsUpgraded reports whether Normalize changed the URL, i.e. whether a fallback
// to the raw URL is available if the secure variant fails.
func IsUpgraded(raw string) bool {
	return Normalize(raw) != raw
}
