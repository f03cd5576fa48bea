package utils

import "strings"

// ParseLabels splits comma-separated input into trimmed, non-empty tokens.
// The same rules apply to card labels and admin role lists.
func ParseLabels(input string) []string {
	labels := []string{}
	for _, part := range strings.Split(input, ",") {
		if label := strings.TrimSpace(part); label != "" {
			labels = append(labels, label)
		}
	}
	return labels
}

// CompactLabels trims every entry and drops the empty ones. The admin listing
// returns [""] for a session without roles.
func CompactLabels(labels []string) []string {
	return ParseLabels(strings.Join(labels, ","))
}
