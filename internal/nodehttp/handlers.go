// Package nodehttp wires the node's HTTP-transport proof endpoints onto the
// same proving.Dispatcher the binary RPC surface (internal/rpcserver) uses,
// so /prove*, /api/v2/prove, /ping and PUT /verifier run the same logic as
// their RPC counterparts (see internal/rpcserver for where the two differ).
package nodehttp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
	"github.com/zkprover/controlplane/internal/proving"
	"github.com/zkprover/controlplane/internal/resultforward"
	"github.com/zkprover/controlplane/internal/respenvelope"
)

// Handlers groups the node's HTTP handler methods.
type Handlers struct {
	Dispatcher *proving.Dispatcher
	CryptoKeys *cryptoenvelope.KeyCache
	Forwarder  *resultforward.Forwarder
	Logger     *slog.Logger
}

// New builds a Handlers set.
func New(d *proving.Dispatcher, cryptoKeys *cryptoenvelope.KeyCache, fwd *resultforward.Forwarder) *Handlers {
	return &Handlers{Dispatcher: d, CryptoKeys: cryptoKeys, Forwarder: fwd, Logger: slog.Default()}
}

// Ping implements GET /ping, consulted by the hub's liveness probe.
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, respenvelope.OK("Pong", nil))
}

type proveRequestBody struct {
	TaskType      string `json:"task_type"`
	ProverID      string `json:"prover_id"`
	CircuitID     string `json:"circuit_id"`
	Payload       []byte `json:"payload"`
	IsEncrypted   bool   `json:"is_encrypted"`
	Auth          string `json:"auth"`
	OAuthProvider string `json:"oauth_provider"`
}

type proveResponseBody struct {
	Proof         []byte   `json:"proof"`
	PublicWitness []string `json:"public_witness"`
}

// Prove implements every /prove* HTTP variant (ProveNosha256,
// ProveNosha256WithWitness, ProveNosha256Offchain, and the v2 Prove) — all
// four share one request/response shape and differ only in prover-side
// hashing behaviour that is opaque to this control plane.
func (h *Handlers) Prove(w http.ResponseWriter, r *http.Request) {
	var body proveRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeArgsInvalid, "ARGS_INVALID"))
		return
	}

	req := proving.ProveRequest{
		TaskType:      proving.TaskType(body.TaskType),
		ProverID:      proving.ProverID(body.ProverID),
		CircuitID:     body.CircuitID,
		Payload:       body.Payload,
		IsEncrypted:   body.IsEncrypted,
		Auth:          body.Auth,
		OAuthProvider: body.OAuthProvider,
		Length:        int64(len(body.Payload)),
	}

	proofHash := r.Header.Get("X-Proof-Hash")

	result, code, err := h.Dispatcher.Prove(r.Context(), req, proofHash)
	if err != nil {
		status, respCode, msg := proveErrorResponse(code, err)
		h.Logger.Warn("nodehttp: prove rejected", "error", err, "code", code)
		writeJSON(w, status, respenvelope.Err(respCode, msg))
		return
	}

	writeJSON(w, http.StatusOK, respenvelope.OK("Successfully", proveResponseBody{
		Proof:         result.Proof,
		PublicWitness: result.PublicWitness,
	}))
}

func proveErrorResponse(code proving.ErrCode, err error) (status, respCode int, msg string) {
	switch code {
	case proving.ErrPrivateKeyNotFound:
		return http.StatusInternalServerError, respenvelope.CodePrivateKeyNotFound, "PRIVATE_KEY_NOT_EXIST"
	case proving.ErrPrivateKeyInvalid:
		return http.StatusBadRequest, respenvelope.CodePrivateKeyInvalid, "DECRYPTION_FAILED"
	case proving.ErrUnsupportedOAuth:
		return http.StatusBadRequest, respenvelope.CodeUnsupportedOAuth, "UNSUPPORTED_OAUTH_PROVIDER"
	case proving.ErrUnauthorizedPayload:
		return http.StatusBadRequest, respenvelope.CodeUnauthorizedPayload, "UNAUTHORIZED_PAYLOAD"
	case proving.ErrUnsupportedProver:
		return http.StatusBadRequest, respenvelope.CodeUnsupportedProver, "UNSUPPORTED_PROVER"
	case proving.ErrUnsupportedTaskType:
		return http.StatusBadRequest, respenvelope.CodeUnsupportedTaskType, "UNSUPPORTED_TASK_TYPE"
	case proving.ErrProverNotResponding:
		return http.StatusGatewayTimeout, respenvelope.CodeProverNotResponding, "PROVER_NOT_RESPONDING"
	default:
		return http.StatusInternalServerError, respenvelope.CodeRequestError, err.Error()
	}
}

type getPublicKeyResponse struct {
	Fingerprint string `json:"fingerprint"`
}

// GetPublicKey implements GET /public_key: returns the node's crypto
// envelope fingerprint so a caller can confirm which key pair is live.
func (h *Handlers) GetPublicKey(w http.ResponseWriter, r *http.Request) {
	envelope, err := h.CryptoKeys.Get()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, respenvelope.Err(respenvelope.CodePublicKeyMissing, "PUBLIC_KEY_NOT_EXIST"))
		return
	}
	fp, err := envelope.Fingerprint()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, respenvelope.Err(respenvelope.CodePublicKeyMissing, "PUBLIC_KEY_NOT_EXIST"))
		return
	}
	writeJSON(w, http.StatusOK, respenvelope.OK("Successfully", getPublicKeyResponse{Fingerprint: fp}))
}

type verifierBody struct {
	ProofHash string `json:"proof_hash"` // base85 ciphertext
	Verifiers string `json:"verifiers"`  // base85 ciphertext
}

// UpdateVerifier implements PUT /verifier: decrypt proof_hash/verifiers
// under the node's crypto key pair and relay the update to the hub, the
// same semantics as rpcserver.Server.UpdateVerifier.
func (h *Handlers) UpdateVerifier(w http.ResponseWriter, r *http.Request) {
	var body verifierBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeArgsInvalid, "ARGS_INVALID"))
		return
	}

	envelope, err := h.CryptoKeys.Get()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, respenvelope.Err(respenvelope.CodePublicKeyMissing, "PUBLIC_KEY_NOT_EXIST"))
		return
	}

	proofHash, err1 := envelope.Decrypt(body.ProofHash)
	verifiersRaw, err2 := envelope.Decrypt(body.Verifiers)
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeDecryptionFailed, "DECRYPTION_FAILED"))
		return
	}

	var verifiers []string
	if err := json.Unmarshal(verifiersRaw, &verifiers); err != nil {
		verifiers = []string{string(verifiersRaw)}
	}

	if err := h.Forwarder.UpdateVerifier(r.Context(), string(proofHash), verifiers); err != nil {
		h.Logger.Warn("nodehttp: update verifier forward failed", "error", err)
		writeJSON(w, http.StatusBadGateway, respenvelope.Err(respenvelope.CodeRequestError, "forward to hub failed"))
		return
	}
	writeJSON(w, http.StatusOK, respenvelope.OK("Successfully", nil))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
