package instance

import (
	"os"
	"strings"
)

// GetID returns the process instance identifier used as the Redis stream
// consumer name and lock owner prefix.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("FREIGHTBID_INSTANCE_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "negotiator-0"
}
