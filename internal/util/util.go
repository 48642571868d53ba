package util

import (
	"fmt"
	"path/filepath"
	"strings"
)

// HumanBytes formats a byte count with binary units.
func HumanBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := unit, 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// RelPath shortens a module id to a path relative to base when the id lies
// inside base. Other ids are returned unchanged.
func RelPath(base, id string) string {
	rel, err := filepath.Rel(base, id)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return id
	}
	return filepath.ToSlash(rel)
}
