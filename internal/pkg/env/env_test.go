package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	prev := Env
	Env = values
	t.Cleanup(func() { Env = prev })
}

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	withEnv(t, map[string]string{"SMARTX_TEST_KEY": "from-file"})
	t.Setenv("SMARTX_TEST_KEY", "from-os")

	assert.Equal(t, "from-file", GetEnv("SMARTX_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("SMARTX_TEST_MISSING", "def"))
}

func TestTypedHelpers(t *testing.T) {
	withEnv(t, map[string]string{
		"N":    "42",
		"BAD":  "forty",
		"FLAG": "true",
		"DUR":  "90s",
		"LIST": " 1, 2,,3 ",
	})

	assert.Equal(t, 42, GetEnvInt("N", 1))
	assert.Equal(t, 7, GetEnvInt("BAD", 7))
	assert.Equal(t, 3, GetEnvInt("UNSET", 3))
	assert.True(t, GetEnvBool("FLAG", false))
	assert.False(t, GetEnvBool("BAD", false))
	assert.Equal(t, 90*time.Second, GetEnvDuration("DUR", time.Minute))
	assert.Equal(t, time.Minute, GetEnvDuration("BAD", time.Minute))
	assert.Equal(t, []string{"1", "2", "3"}, GetEnvList("LIST"))
	assert.Nil(t, GetEnvList("UNSET"))
}
