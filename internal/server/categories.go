package server

import "strings"

// InterestCategories is the fixed catalog users pick interests from. Anything
// outside the catalog goes in custom interests instead.
var InterestCategories = []string{
	"Technology",
	"Business",
	"Finance",
	"Science",
	"Health",
	"Education",
	"Sports",
	"Music",
	"Arts",
	"Travel",
	"Food",
	"Networking",
	"Career",
	"Volunteering",
}

// invalidInterests returns the entries that are not in the catalog. Matching
// is case-insensitive so clients need not echo the catalog casing.
func invalidInterests(interests []string) []string {
	var invalid []string
	for _, interest := range interests {
		found := false
		for _, cat := range InterestCategories {
			if strings.EqualFold(cat, interest) {
				found = true
				break
			}
		}
		if !found {
			invalid = append(invalid, interest)
		}
	}
	return invalid
}
