package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each section ("" for top level) to its valid keys.
var knownKeys = map[string][]string{
	"":        {"auth", "default_table", "import", "logging", "network", "service"},
	"auth":    {"client_secret_file", "consent", "credential_file", "scopes"},
	"service": {"base_url", "upload_url", "view_url"},
	"import":  {"chunk_size", "history_file", "record_history", "resume_uploads"},
	"logging": {"log_format", "log_level"},
	"network": {"timeout", "user_agent"},
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		section, field := "", key.String()
		if len(key) > 1 {
			section, field = key[0], key[len(key)-1]
		}

		known, ok := knownKeys[section]
		if !ok {
			known = knownKeys[""]
			field = section
		}

		name := key.String()
		if suggestion := closestMatch(field, known); suggestion != "" {
			errs = append(errs, fmt.Errorf("unknown config key %q, did you mean %q?", name, suggestion))
			continue
		}

		errs = append(errs, fmt.Errorf("unknown config key %q", name))
	}

	return errors.Join(errs...)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	sorted := append([]string(nil), known...)
	sort.Strings(sorted)

	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range sorted {
		d := levenshtein(strings.ToLower(unknown), k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
