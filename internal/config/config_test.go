package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("WB_TEST_STR", "value")
	assert.Equal(t, "value", getEnv("WB_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", getEnv("WB_TEST_STR_MISSING", "fallback"))
}

func TestGetInt(t *testing.T) {
	t.Setenv("WB_TEST_INT", "42")
	assert.Equal(t, 42, getInt("WB_TEST_INT", 7))

	t.Setenv("WB_TEST_INT", "not-a-number")
	assert.Equal(t, 7, getInt("WB_TEST_INT", 7))
}

func TestGetDuration(t *testing.T) {
	t.Setenv("WB_TEST_DUR", "2m")
	assert.Equal(t, 2*time.Minute, getDuration("WB_TEST_DUR", time.Second))

	// bare numbers are seconds
	t.Setenv("WB_TEST_DUR", "30")
	assert.Equal(t, 30*time.Second, getDuration("WB_TEST_DUR", time.Second))

	t.Setenv("WB_TEST_DUR", "garbage")
	assert.Equal(t, time.Second, getDuration("WB_TEST_DUR", time.Second))
}
