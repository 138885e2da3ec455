package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInTestModeReadsFlagOnce(t *testing.T) {
	testModeOnce = sync.Once{}
	t.Cleanup(func() { testModeOnce = sync.Once{} })

	t.Setenv(testModeEnv, "1")
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	assert.True(t, InTestMode(), "flag is cached for the life of the process")
}

func TestInTestModeOffByDefault(t *testing.T) {
	testModeOnce = sync.Once{}
	t.Cleanup(func() { testModeOnce = sync.Once{} })

	t.Setenv(testModeEnv, "")
	assert.False(t, InTestMode())
}
