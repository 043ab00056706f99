// Package dispatch implements the hub-side Dispatch Engine (C6) and
// Registration Endpoint (C7): GET /node signs and fans out a task to a
// random sample of live nodes, and POST /node admits a new node after a
// liveness check.
package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
	"github.com/zkprover/controlplane/internal/metrics"
	"github.com/zkprover/controlplane/internal/registry"
	"github.com/zkprover/controlplane/internal/respenvelope"
)

// Engine implements GET /node (C6) and POST /node (C7).
type Engine struct {
	Registry *registry.Registry
	KeyCache *cryptoenvelope.KeyCache
	Liveness *registry.LivenessProbe
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	HTTPClient *http.Client

	MaxSampleAttempts int
	RetrySleep        time.Duration
	SampleSize        int
}

// NewEngine builds an Engine with spec.md §4.6 defaults: 3 sample
// attempts, 100ms retry sleep, sample size 4.
func NewEngine(reg *registry.Registry, keyCache *cryptoenvelope.KeyCache, m *metrics.Metrics) *Engine {
	return &Engine{
		Registry:          reg,
		KeyCache:          keyCache,
		Liveness:          registry.NewLivenessProbe(),
		Metrics:           m,
		Logger:            slog.Default(),
		HTTPClient:        &http.Client{Timeout: 6 * time.Second},
		MaxSampleAttempts: 3,
		RetrySleep:        100 * time.Millisecond,
		SampleSize:        4,
	}
}

// addrInfo is the {address, timestamp} shape spec.md §6's GET /node
// response nests per node for both grpc_info and http_info.
type addrInfo struct {
	Address   string `json:"address"`
	Timestamp int64  `json:"timestamp"`
}

type nodeResult struct {
	GRPCInfo addrInfo `json:"grpc_info"`
	HTTPInfo addrInfo `json:"http_info"`
	PoH      string   `json:"poh"`
}

// dispatchResponse is GET /node's flat response envelope: code/msg from
// respenvelope plus the sampled results and proof hash as top-level
// siblings, not nested under "results".
type dispatchResponse struct {
	Code      int          `json:"code"`
	Msg       string       `json:"msg"`
	Results   []nodeResult `json:"results"`
	ProofHash string       `json:"proof_hash"`
}

type pushTaskBody struct {
	ProofHash string `json:"proof_hash"`
	Signature string `json:"signature"`
}

// HandleGetNode implements GET /api/v1/hub/node: sign a fresh proof hash,
// sample live nodes, fan the task out fire-and-forget, and return the
// sampled nodes plus proof hash to the caller.
func (e *Engine) HandleGetNode(w http.ResponseWriter, r *http.Request) {
	envelope, err := e.KeyCache.Get()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, respenvelope.Err(respenvelope.CodePrivateKeyMissing, "PRIVATE_KEY_NOT_EXIST"))
		return
	}

	requestID := uuid.NewString()
	proofHash := computeProofHash(requestID)
	signature, err := envelope.Sign([]byte(proofHash))
	if err != nil {
		e.Logger.Error("dispatch: sign proof hash failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, respenvelope.Err(respenvelope.CodePrivateKeyMissing, "PRIVATE_KEY_NOT_EXIST"))
		return
	}

	for attempt := 0; attempt < e.MaxSampleAttempts; attempt++ {
		nodes := e.Registry.Sample(e.SampleSize)
		if len(nodes) == 0 {
			time.Sleep(e.RetrySleep)
			continue
		}

		results := make([]nodeResult, 0, len(nodes))
		for _, n := range nodes {
			results = append(results, nodeResult{
				GRPCInfo: addrInfo{Address: n.GRPCAddr, Timestamp: n.RegisteredAt},
				HTTPInfo: addrInfo{Address: n.HTTPAddr, Timestamp: n.RegisteredAt},
				PoH:      n.PoH,
			})
			go e.pushTask(n.HTTPAddr, n.ID, proofHash, signature)
		}

		e.Metrics.DispatchAttempts.WithLabelValues("ok").Inc()
		writeJSON(w, http.StatusOK, dispatchResponse{
			Code:      respenvelope.CodeOK,
			Msg:       "Successfully",
			Results:   results,
			ProofHash: proofHash,
		})
		return
	}

	e.Metrics.DispatchAttempts.WithLabelValues("no_nodes").Inc()
	writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeRequestError, "Failed to process any nodes"))
}

// pushTask POSTs the signed task to one node's /push_task. It never
// propagates an error to the caller of HandleGetNode — per-node failure is
// isolated and only logged (spec.md §4.6/§5 fan-out isolation).
func (e *Engine) pushTask(httpAddr, nodeID, proofHash, signature string) {
	body, err := json.Marshal(pushTaskBody{ProofHash: proofHash, Signature: signature})
	if err != nil {
		e.Logger.Error("dispatch: marshal push_task body failed", "node_id", nodeID, "error", err)
		return
	}

	resp, err := e.HTTPClient.Post(fmt.Sprintf("%s/push_task", httpAddr), "application/json", jsonReader(body))
	if err != nil {
		e.Metrics.DispatchFanoutErr.WithLabelValues(nodeID).Inc()
		e.Logger.Warn("dispatch: push_task failed", "node_id", nodeID, "http_addr", httpAddr, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.Metrics.DispatchFanoutErr.WithLabelValues(nodeID).Inc()
		e.Logger.Warn("dispatch: push_task rejected", "node_id", nodeID, "status", resp.StatusCode)
	}
}

// computeProofHash implements spec.md §3's Dispatch Artifact formula:
// "0x" + sha256(request_id + "-" + unix_millis).
func computeProofHash(requestID string) string {
	millis := time.Now().UnixMilli()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%d", requestID, millis)))
	return "0x" + hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
