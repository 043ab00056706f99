package proving

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubValidator struct{ ok bool }

func (s stubValidator) Verify(payload []byte) bool { return s.ok }

func TestValidatorRegistry_ResolvesCircuitBindingFirst(t *testing.T) {
	r := NewValidatorRegistry()
	r.BindCircuit("circuit-a", stubValidator{ok: true})
	r.BindOAuthProvider("google", stubValidator{ok: false})

	v, ok := r.Resolve("circuit-a", "google")
	assert.True(t, ok)
	assert.True(t, v.Verify(nil))
}

func TestValidatorRegistry_FallsBackToOAuthProvider(t *testing.T) {
	r := NewValidatorRegistry()
	r.BindOAuthProvider("google", stubValidator{ok: true})

	v, ok := r.Resolve("unbound-circuit", "google")
	assert.True(t, ok)
	assert.True(t, v.Verify(nil))
}

func TestValidatorRegistry_UnresolvedReturnsFalse(t *testing.T) {
	r := NewValidatorRegistry()
	_, ok := r.Resolve("nothing", "nobody")
	assert.False(t, ok)
}
