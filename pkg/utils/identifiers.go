package utils

import "strings"

// SanitizeIdentifier makes an identifier safe for filesystem paths.
// Run and tool ids may contain characters (colons, slashes, spaces) that are
// not valid in directory names.
func SanitizeIdentifier(id string) string {
	sanitized := strings.ReplaceAll(id, ":", "-")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	sanitized = strings.ReplaceAll(sanitized, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, "\\", "-")
	return sanitized
}
