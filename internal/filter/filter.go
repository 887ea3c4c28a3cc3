// Package filter decides whether a message is worth extracting events from.
package filter

import "strings"

// Matches reports whether a message matches the user's declared interests.
// An empty interest list disables filtering entirely. Matching is literal
// case-insensitive substring containment over the subject and body; word
// boundaries are deliberately ignored.
func Matches(interests []string, subject, body string) bool {
	if len(interests) == 0 {
		return true
	}

	haystack := strings.ToLower(subject + " " + body)
	for _, interest := range interests {
		if interest == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(interest)) {
			return true
		}
	}
	return false
}
