package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
	"github.com/zkprover/controlplane/internal/respenvelope"
)

// Relay implements the hub-side handlers for POST /result and PUT
// /verifier: decrypt the node's payload with the hub's private key, then
// re-encrypt each field under the Explorer's public key and relay it on to
// the Explorer service. spec.md §9 notes the source constructs a fresh envelope per
// forward call; this rendition always goes through the shared Key Cache
// instead (an intentional simplification, not a semantic change).
type Relay struct {
	KeyCache      *cryptoenvelope.KeyCache // hub's session key pair
	ExplorerURL   string
	ExplorerEnv   *cryptoenvelope.Envelope // Explorer's public key, for re-encrypting to them
	HTTPClient    *http.Client
}

// NewRelay builds a Relay against the given Explorer API URL.
func NewRelay(keyCache *cryptoenvelope.KeyCache, explorerURL string, explorerEnv *cryptoenvelope.Envelope) *Relay {
	return &Relay{
		KeyCache:    keyCache,
		ExplorerURL: explorerURL,
		ExplorerEnv: explorerEnv,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type resultBody struct {
	ProjectName string `json:"project_name"`
	ProofHash   string `json:"proof_hash"`
	Duration    string `json:"duration"`
	Verifiers   string `json:"verifiers"`
}

type verifierBody struct {
	ProofHash string `json:"proof_hash"`
	Verifiers string `json:"verifiers"`
}

// HandleResult implements POST /api/v1/hub/result.
func (rl *Relay) HandleResult(w http.ResponseWriter, r *http.Request) {
	envelope, err := rl.KeyCache.Get()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, respenvelope.Err(respenvelope.CodePrivateKeyMissing, "PRIVATE_KEY_NOT_EXIST"))
		return
	}

	var body resultBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeArgsInvalid, "ARGS_INVALID"))
		return
	}

	projectName, err1 := envelope.Decrypt(body.ProjectName)
	proofHash, err2 := envelope.Decrypt(body.ProofHash)
	duration, err3 := envelope.Decrypt(body.Duration)
	verifiers, err4 := envelope.Decrypt(body.Verifiers)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeDecryptionFailed, "DECRYPTION_FAILED"))
		return
	}

	if err := rl.forwardToExplorer(r.Context(), "/api/v1/data/proof", map[string][]byte{
		"project_name": projectName,
		"proof_hash":   proofHash,
		"duration":     duration,
		"verifiers":    verifiers,
	}); err != nil {
		writeJSON(w, http.StatusInternalServerError, respenvelope.Err(respenvelope.CodeRequestError, fmt.Sprintf("forward to explorer failed: %v", err)))
		return
	}

	writeJSON(w, http.StatusOK, respenvelope.OK("Successfully", nil))
}

// HandleUpdateVerifier implements PUT /api/v1/hub/verifier.
func (rl *Relay) HandleUpdateVerifier(w http.ResponseWriter, r *http.Request) {
	envelope, err := rl.KeyCache.Get()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, respenvelope.Err(respenvelope.CodePrivateKeyMissing, "PRIVATE_KEY_NOT_EXIST"))
		return
	}

	var body verifierBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeArgsInvalid, "ARGS_INVALID"))
		return
	}

	proofHash, err1 := envelope.Decrypt(body.ProofHash)
	verifiers, err2 := envelope.Decrypt(body.Verifiers)
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeDecryptionFailed, "DECRYPTION_FAILED"))
		return
	}

	if err := rl.forwardToExplorer(r.Context(), "/api/v1/data/verifier", map[string][]byte{
		"proof_hash": proofHash,
		"verifiers":  verifiers,
	}); err != nil {
		writeJSON(w, http.StatusInternalServerError, respenvelope.Err(respenvelope.CodeRequestError, fmt.Sprintf("forward to explorer failed: %v", err)))
		return
	}

	writeJSON(w, http.StatusOK, respenvelope.OK("Successfully", nil))
}

func (rl *Relay) forwardToExplorer(ctx context.Context, path string, fields map[string][]byte) error {
	payload := make(map[string]string, len(fields))
	for k, v := range fields {
		cipherText, err := rl.ExplorerEnv.Encrypt(v)
		if err != nil {
			return fmt.Errorf("encrypt %s for explorer: %w", k, err)
		}
		payload[k] = cipherText
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal explorer payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rl.ExplorerURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build explorer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rl.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to explorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("explorer rejected with status %d", resp.StatusCode)
	}
	return nil
}
