// Package dataset loads test cases from JSON files.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datar-psa/rageval/api"
)

// ErrInvalidTestCase is returned for a test case without a question
var ErrInvalidTestCase = errors.New("invalid test case")

// Load reads dir/name, adding the .json extension when name has none.
func Load(dir, name string) ([]api.TestCase, error) {
	if filepath.Ext(name) == "" {
		name += ".json"
	}
	return LoadFile(filepath.Join(dir, name))
}

// LoadFile reads a JSON array of test cases.
func LoadFile(path string) ([]api.TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test data: %w", err)
	}
	cases, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// Parse decodes a JSON array of test cases. Every case needs a question;
// id, reference and expected_topics are optional.
func Parse(data []byte) ([]api.TestCase, error) {
	var cases []api.TestCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse test data: %w", err)
	}
	for i, tc := range cases {
		if strings.TrimSpace(tc.Question) == "" {
			return nil, fmt.Errorf("%w: entry %d has no question", ErrInvalidTestCase, i)
		}
	}
	return cases, nil
}
