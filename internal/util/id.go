package util

import (
	"strings"

	"github.com/gofrs/uuid/v5"
)

// NewID returns a random identifier, optionally namespaced as prefix_<hex>.
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}
