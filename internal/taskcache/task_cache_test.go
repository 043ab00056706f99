package taskcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGetRoundTrip(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)

	c.Set("0xabc", StatePending, 60)
	state, ok := c.Get("0xabc")
	require.True(t, ok)
	assert.Equal(t, StatePending, state)
}

func TestCache_GetExpiresOnRead(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)

	c.Set("0xabc", StatePending, 0)
	c.mu.Lock()
	e := c.items["0xabc"]
	e.ExpiresAt = time.Now().Add(-time.Second)
	c.items["0xabc"] = e
	c.mu.Unlock()

	_, ok := c.Get("0xabc")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_ClaimExactlyOnceThenInvalid(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)

	c.Set("0xabc", StatePending, 60)

	result, msg := c.Claim("0xabc")
	assert.Equal(t, ClaimOK, result)
	assert.Equal(t, "Successfully", msg)

	result2, msg2 := c.Claim("0xabc")
	assert.Equal(t, ClaimInvalid, result2)
	assert.Equal(t, "Proof hash is invalid", msg2)
}

func TestCache_ClaimMissingIsNotFound(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)

	result, msg := c.Claim("0xnope")
	assert.Equal(t, ClaimNotFound, result)
	assert.Equal(t, "Proof hash does not exist", msg)
}

func TestCache_SurvivesRestartWithinTTL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.bin")

	c1, err := New(path)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		c1.Set(string(rune('a'+i)), StatePending, 3600)
	}
	require.NoError(t, c1.flush())

	c2, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 10, c2.Len())
}

func TestCache_DoesNotSurviveRestartPastTTL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.bin")

	c1, err := New(path)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		c1.Set(string(rune('a'+i)), StatePending, 5)
	}
	c1.mu.Lock()
	for k, e := range c1.items {
		e.ExpiresAt = time.Now().Add(-time.Hour)
		c1.items[k] = e
	}
	c1.mu.Unlock()
	require.NoError(t, c1.flush())

	c2, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 0, c2.Len())
}
