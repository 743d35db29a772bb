// internal/normalize/normalize.go

// Package normalize maps recognized ingredient names to the query terms
// used against the nutrition database.
package normalize

import "strings"

var synonyms = map[string]string{
	"green onions":  "onions, spring or scallions",
	"spring onions": "onions, spring or scallions",
	"scallions":     "onions, spring or scallions",

	"bok choy": "cabbage, chinese (pak-choi)",
	"pak choi": "cabbage, chinese (pak-choi)",
	"pok choi": "cabbage, chinese (pak-choi)",

	"chicken breast": "chicken breast",
	"chicken thigh":  "chicken, dark meat",
	"fried chicken":  "fried chicken",

	"rice":       "cooked rice",
	"white rice": "cooked white rice",
	"brown rice": "cooked brown rice",

	"noodles": "cooked noodles",
	"udon":    "udon noodles",

	"lettuce":         "lettuce",
	"romaine lettuce": "romaine lettuce",

	"broccoli": "broccoli",
	"carrots":  "carrots",
}

// Normalize lower-cases and trims name and maps it through the synonym
// table, returning the cleaned name itself when there is no entry.
//
// Canonical terms are never keys of a different mapping, so applying
// Normalize twice gives the same result as applying it once.
func Normalize(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if term, ok := synonyms[key]; ok {
		return term
	}
	return key
}

// NormalizeValue is Normalize for loosely typed input, such as a decoded
// JSON field. Anything that is not a string normalizes to "".
func NormalizeValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Normalize(s)
}
