// Package testutil provides test assertions, fakes and mocks shared across packages.
package testutil

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertJSONEqual compares two JSON strings for equality, ignoring formatting
func AssertJSONEqual(t *testing.T, expected, actual string, msgAndArgs ...interface{}) {
	t.Helper()

	var expectedJSON, actualJSON interface{}
	require.NoError(t, json.Unmarshal([]byte(expected), &expectedJSON), "expected JSON is invalid")
	require.NoError(t, json.Unmarshal([]byte(actual), &actualJSON), "actual JSON is invalid")

	assert.Equal(t, expectedJSON, actualJSON, msgAndArgs...)
}

// AssertFileContent asserts the file at path exists with exactly want as content.
func AssertFileContent(t *testing.T, path, want string, msgAndArgs ...interface{}) {
	t.Helper()

	got, err := os.ReadFile(path)
	require.NoError(t, err, msgAndArgs...)
	assert.Equal(t, want, string(got), msgAndArgs...)
}

// AssertNoFile asserts nothing exists at path.
func AssertNoFile(t *testing.T, path string, msgAndArgs ...interface{}) {
	t.Helper()

	_, err := os.Lstat(path)
	assert.True(t, os.IsNotExist(err), msgAndArgs...)
}

// WriteFile writes content to path with mode, failing the test on error.
func WriteFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}
