package nodehttp

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
	"github.com/zkprover/controlplane/internal/proving"
	"github.com/zkprover/controlplane/internal/resultforward"
)

func genEnvelope(t *testing.T) *cryptoenvelope.Envelope {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return cryptoenvelope.NewEnvelope(priv, &priv.PublicKey)
}

func TestHandlers_UpdateVerifierDecryptsIncomingCiphertext(t *testing.T) {
	nodeEnvelope := genEnvelope(t) // node's own crypto key pair
	hubEnvelope := genEnvelope(t)  // hub's session key, as the node sees it

	var captured struct {
		ProofHash string `json:"proof_hash"`
		Verifiers string `json:"verifiers"`
	}
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	}))
	defer hub.Close()

	forwarder := resultforward.NewForwarder(hub.URL, cryptoenvelope.NewStaticKeyCache(hubEnvelope))
	h := New(&proving.Dispatcher{}, cryptoenvelope.NewStaticKeyCache(nodeEnvelope), forwarder)
	h.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	proofHashCT, err := nodeEnvelope.Encrypt([]byte("0xabc"))
	require.NoError(t, err)
	verifiersJSON, err := json.Marshal([]string{"v1", "v2"})
	require.NoError(t, err)
	verifiersCT, err := nodeEnvelope.Encrypt(verifiersJSON)
	require.NoError(t, err)

	reqBody, err := json.Marshal(verifierBody{ProofHash: proofHashCT, Verifiers: verifiersCT})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/verifier", strings.NewReader(string(reqBody)))
	rec := httptest.NewRecorder()
	h.UpdateVerifier(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	plainHash, err := hubEnvelope.Decrypt(captured.ProofHash)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", string(plainHash))

	plainVerifiersJSON, err := hubEnvelope.Decrypt(captured.Verifiers)
	require.NoError(t, err)
	var verifiers []string
	require.NoError(t, json.Unmarshal(plainVerifiersJSON, &verifiers))
	assert.Equal(t, []string{"v1", "v2"}, verifiers)
}

func TestHandlers_UpdateVerifierRejectsUndecryptableBody(t *testing.T) {
	nodeEnvelope := genEnvelope(t)
	h := New(&proving.Dispatcher{}, cryptoenvelope.NewStaticKeyCache(nodeEnvelope), resultforward.NewForwarder("http://unused", cryptoenvelope.NewStaticKeyCache(nodeEnvelope)))
	h.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	reqBody, err := json.Marshal(verifierBody{ProofHash: "not-ciphertext", Verifiers: "also-not-ciphertext"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/verifier", strings.NewReader(string(reqBody)))
	rec := httptest.NewRecorder()
	h.UpdateVerifier(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_GetPublicKeyReturnsFingerprint(t *testing.T) {
	envelope := genEnvelope(t)
	h := New(&proving.Dispatcher{}, cryptoenvelope.NewStaticKeyCache(envelope), nil)
	h.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	req := httptest.NewRequest(http.MethodGet, "/public_key", nil)
	rec := httptest.NewRecorder()
	h.GetPublicKey(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results getPublicKeyResponse `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	expected, err := envelope.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, expected, body.Results.Fingerprint)
}
