package admit

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
	"github.com/zkprover/controlplane/internal/taskcache"
)

func newTestHandler(t *testing.T) (*Handler, *cryptoenvelope.Envelope) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	envelope := cryptoenvelope.NewEnvelope(priv, &priv.PublicKey)

	cache, err := taskcache.New("")
	require.NoError(t, err)

	return NewHandler(cryptoenvelope.NewStaticKeyCache(envelope), cache), envelope
}

func doPush(t *testing.T, h *Handler, proofHash, signature string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(pushTaskBody{ProofHash: proofHash, Signature: signature})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/push_task", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPushTask_AdmitsValidSignature(t *testing.T) {
	h, envelope := newTestHandler(t)
	sig, err := envelope.Sign([]byte("0xabc"))
	require.NoError(t, err)

	rec := doPush(t, h, "0xabc", sig)
	assert.Equal(t, http.StatusOK, rec.Code)

	state, ok := h.TaskCache.Get("0xabc")
	require.True(t, ok)
	assert.Equal(t, taskcache.StatePending, state)
}

func TestPushTask_RejectsForgedSignature(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doPush(t, h, "0xabc", "not-a-real-signature")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, ok := h.TaskCache.Get("0xabc")
	assert.False(t, ok)
}

func TestPushTask_RejectsReplayBeforeTTL(t *testing.T) {
	h, envelope := newTestHandler(t)
	sig, err := envelope.Sign([]byte("0xabc"))
	require.NoError(t, err)

	rec1 := doPush(t, h, "0xabc", sig)
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2 := doPush(t, h, "0xabc", sig)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}
