package heartbeat

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
)

func testEnvelope(t *testing.T) *cryptoenvelope.Envelope {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return cryptoenvelope.NewEnvelope(priv, &priv.PublicKey)
}

func TestLoop_BeatsPostsEncryptedEndpoints(t *testing.T) {
	envelope := testEnvelope(t)
	var hits int32
	var body registerBody

	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer hub.Close()

	loop := NewLoop(hub.URL, "grpc:1", "http:2", cryptoenvelope.NewStaticKeyCache(envelope))
	loop.beat()

	require.Equal(t, int32(1), atomic.LoadInt32(&hits))

	plainGRPC, err := envelope.Decrypt(body.GRPCInfo)
	require.NoError(t, err)
	require.Equal(t, "grpc:1", string(plainGRPC))
}

func TestLoop_NeverPanicsOnTransportError(t *testing.T) {
	envelope := testEnvelope(t)
	loop := NewLoop("http://127.0.0.1:0", "grpc:1", "http:2", cryptoenvelope.NewStaticKeyCache(envelope))

	require.NotPanics(t, func() { loop.beat() })
}

func TestLoop_StartStopTerminatesCleanly(t *testing.T) {
	envelope := testEnvelope(t)
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer hub.Close()

	loop := NewLoop(hub.URL, "grpc:1", "http:2", cryptoenvelope.NewStaticKeyCache(envelope))
	loop.Interval = 5 * time.Millisecond
	loop.Start()
	time.Sleep(20 * time.Millisecond)
	loop.Stop()
}
