package dispatch

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
	"github.com/zkprover/controlplane/internal/metrics"
	"github.com/zkprover/controlplane/internal/registry"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	envelope := cryptoenvelope.NewEnvelope(priv, &priv.PublicKey)

	reg := registry.New()
	return &Engine{
		Registry:          reg,
		KeyCache:          cryptoenvelope.NewStaticKeyCache(envelope),
		Liveness:          registry.NewLivenessProbe(),
		Metrics:           metrics.NewForTest(),
		Logger:            slog.Default(),
		HTTPClient:        http.DefaultClient,
		MaxSampleAttempts: 3,
		SampleSize:        4,
	}
}

func TestHandleGetNode_NoNodesReturns400(t *testing.T) {
	e := newTestEngine(t)
	e.RetrySleep = 0

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hub/node", nil)
	rec := httptest.NewRecorder()

	e.HandleGetNode(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetNode_ReturnsSampledNodes(t *testing.T) {
	e := newTestEngine(t)
	e.RetrySleep = 0
	e.Registry.Add("grpc://a", "http://a")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hub/node", nil)
	rec := httptest.NewRecorder()

	e.HandleGetNode(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body dispatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Code)
	assert.NotEmpty(t, body.ProofHash)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "grpc://a", body.Results[0].GRPCInfo.Address)
	assert.NotZero(t, body.Results[0].GRPCInfo.Timestamp)
	assert.Equal(t, "http://a", body.Results[0].HTTPInfo.Address)
	assert.NotZero(t, body.Results[0].HTTPInfo.Timestamp)
}
