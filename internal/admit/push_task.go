// Package admit implements the node-side Claim & Admit endpoint (spec C9):
// POST /push_task verifies the hub's signature over the proof hash and
// inserts a PENDING entry into the task cache with the default TTL.
package admit

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
	"github.com/zkprover/controlplane/internal/respenvelope"
	"github.com/zkprover/controlplane/internal/taskcache"
)

// Handler implements POST /push_task.
type Handler struct {
	KeyCache  *cryptoenvelope.KeyCache // node's view of the hub's session public key (verify only)
	TaskCache *taskcache.Cache
	Logger    *slog.Logger
	TTLSec    int
}

// NewHandler builds a Handler with the 60s default TTL.
func NewHandler(keyCache *cryptoenvelope.KeyCache, cache *taskcache.Cache) *Handler {
	return &Handler{KeyCache: keyCache, TaskCache: cache, Logger: slog.Default(), TTLSec: 60}
}

type pushTaskBody struct {
	ProofHash string `json:"proof_hash"`
	Signature string `json:"signature"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body pushTaskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeArgsInvalid, "ARGS_INVALID"))
		return
	}

	logger := h.Logger.With("proof_hash", body.ProofHash)

	envelope, err := h.KeyCache.Get()
	if err != nil {
		logger.Error("admit: key cache unavailable", "error", err)
		writeJSON(w, http.StatusInternalServerError, respenvelope.Err(respenvelope.CodePublicKeyMissing, "PUBLIC_KEY_NOT_EXIST"))
		return
	}

	if !envelope.Verify([]byte(body.ProofHash), body.Signature) {
		logger.Warn("admit: signature verification failed")
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeInvalidSignature, "invalid signature"))
		return
	}

	if _, exists := h.TaskCache.Get(body.ProofHash); exists {
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeTaskInvalid, "Proof hash is exist"))
		return
	}

	h.TaskCache.Set(body.ProofHash, taskcache.StatePending, h.TTLSec)
	logger.Info("admit: task admitted")
	writeJSON(w, http.StatusOK, respenvelope.OK("Successfully", nil))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
