package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datar-psa/rageval/api"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test_4.json"), []byte(`[
		{"id": "java", "question": "How many articles are there for JAVA?", "reference": "23"},
		{"question": "What courses are offered?", "expected_topics": ["courses", "pricing"]}
	]`), 0o600))

	want := []api.TestCase{
		{ID: "java", Question: "How many articles are there for JAVA?", Reference: "23"},
		{Question: "What courses are offered?", ExpectedTopics: []string{"courses", "pricing"}},
	}

	for _, name := range []string{"test_4", "test_4.json"} {
		cases, err := Load(dir, name)
		require.NoError(t, err, name)
		assert.Equal(t, want, cases, name)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	notArray := filepath.Join(dir, "object.json")
	require.NoError(t, os.WriteFile(notArray, []byte(`{"question": "q"}`), 0o600))
	_, err = LoadFile(notArray)
	assert.Error(t, err)

	noQuestion := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(noQuestion, []byte(`[{"question": "q"}, {"reference": "r"}]`), 0o600))
	_, err = LoadFile(noQuestion)
	assert.ErrorIs(t, err, ErrInvalidTestCase)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestParse_Empty(t *testing.T) {
	cases, err := Parse([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestParse_IDTypes(t *testing.T) {
	cases, err := Parse([]byte(`[
		{"id": 1, "question": "q1"},
		{"id": "java", "question": "q2"},
		{"id": 2.5, "question": "q3"},
		{"id": null, "question": "q4"},
		{"question": "q5"},
		{"id": true, "question": "q6"}
	]`))
	require.NoError(t, err)

	ids := make([]string, len(cases))
	for i, tc := range cases {
		ids[i] = tc.ID
	}
	assert.Equal(t, []string{"1", "java", "2.5", "", "", "true"}, ids)
	assert.Equal(t, "q1", cases[0].Question)
}
