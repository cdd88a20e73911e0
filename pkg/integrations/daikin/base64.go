package daikin

import (
	"encoding/base64"
	"strings"
)

// IsValidBase64 reports whether key is a padded standard base64 string.
func IsValidBase64(key string) bool {
	if key == "" || len(key)%4 == 1 {
		return false
	}
	// The decoder silently skips line breaks.
	if strings.ContainsAny(key, "\r\n") {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(key)
	return err == nil
}
