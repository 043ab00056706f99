package resultforward

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
)

func testEnvelope(t *testing.T) *cryptoenvelope.Envelope {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return cryptoenvelope.NewEnvelope(priv, &priv.PublicKey)
}

func TestForwarder_SendResultEncryptsAllFields(t *testing.T) {
	envelope := testEnvelope(t)
	var captured resultBody

	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/hub/result", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	}))
	defer hub.Close()

	fwd := NewForwarder(hub.URL, cryptoenvelope.NewStaticKeyCache(envelope))
	err := fwd.SendResult(t.Context(), "proj-a", "0xabc", 250*time.Millisecond, []string{"v1", "v2"})
	require.NoError(t, err)

	plainHash, err := envelope.Decrypt(captured.ProofHash)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", string(plainHash))

	plainVerifiers, err := envelope.Decrypt(captured.Verifiers)
	require.NoError(t, err)
	var verifiers []string
	require.NoError(t, json.Unmarshal(plainVerifiers, &verifiers))
	assert.Equal(t, []string{"v1", "v2"}, verifiers)
}

func TestForwarder_SendResultErrorsOnNonOKStatus(t *testing.T) {
	envelope := testEnvelope(t)
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer hub.Close()

	fwd := NewForwarder(hub.URL, cryptoenvelope.NewStaticKeyCache(envelope))
	err := fwd.SendResult(t.Context(), "proj-a", "0xabc", time.Second, nil)
	assert.Error(t, err)
}

func TestForwarder_UpdateVerifierUsesPUT(t *testing.T) {
	envelope := testEnvelope(t)
	var method string
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer hub.Close()

	fwd := NewForwarder(hub.URL, cryptoenvelope.NewStaticKeyCache(envelope))
	err := fwd.UpdateVerifier(t.Context(), "0xabc", []string{"v1"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, method)
}
