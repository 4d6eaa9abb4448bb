package github

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadIssuesFile reads issues from a JSON file containing an array of Issue
// objects, as produced by a previous export. A limit of 0 means no limit.
func LoadIssuesFile(path string, limit int) ([]Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading issues file: %w", err)
	}

	var issues []Issue
	if err := json.Unmarshal(data, &issues); err != nil {
		return nil, fmt.Errorf("parsing issues file %s: %w", path, err)
	}

	if limit > 0 && len(issues) > limit {
		issues = issues[:limit]
	}
	return issues, nil
}
