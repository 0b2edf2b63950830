package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetString(t *testing.T) {
	t.Setenv("TC_STRING", "value")
	assert.Equal(t, "value", GetString("TC_STRING", "default"))
	assert.Equal(t, "default", GetString("TC_STRING_MISSING", "default"))
}

func TestGetStringFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("  from-file\n"), 0o600))

	t.Setenv("TC_SECRET", "from-env")
	t.Setenv("TC_SECRET_FILE", path)
	assert.Equal(t, "from-file", GetStringFromFile("TC_SECRET", ""))

	t.Setenv("TC_SECRET_FILE", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, "from-env", GetStringFromFile("TC_SECRET", ""))
}

func TestGetIntBoolDuration(t *testing.T) {
	t.Setenv("TC_INT", "42")
	t.Setenv("TC_BAD_INT", "x")
	t.Setenv("TC_BOOL", "true")
	t.Setenv("TC_DURATION", "1500ms")

	assert.Equal(t, 42, GetInt("TC_INT", 1))
	assert.Equal(t, 1, GetInt("TC_BAD_INT", 1))
	assert.True(t, GetBool("TC_BOOL", false))
	assert.Equal(t, 1500*time.Millisecond, GetDuration("TC_DURATION", time.Second))
}

func TestGetStringSlice(t *testing.T) {
	t.Setenv("TC_SLICE", " a, b ,,c ")
	assert.Equal(t, []string{"a", "b", "c"}, GetStringSlice("TC_SLICE", nil))

	t.Setenv("TC_SLICE", " , ")
	assert.Equal(t, []string{"x"}, GetStringSlice("TC_SLICE", []string{"x"}))
}
