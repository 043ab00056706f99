// Package resultforward implements the node-side Result Forwarder (spec
// C11): two encrypted POSTs to the hub reporting a completed proof and
// updating its verifier list. Hub-side handlers decrypt and relay the same
// payloads on to the Explorer service.
package resultforward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
)

// Forwarder encrypts result fields under the hub's session public key and
// posts them to the hub's /result and /verifier endpoints.
type Forwarder struct {
	HubAPIURL  string
	KeyCache   *cryptoenvelope.KeyCache // node's view of the hub's session public key
	HTTPClient *http.Client
}

// NewForwarder builds a Forwarder against hubAPIURL.
func NewForwarder(hubAPIURL string, keyCache *cryptoenvelope.KeyCache) *Forwarder {
	return &Forwarder{
		HubAPIURL:  hubAPIURL,
		KeyCache:   keyCache,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
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

// SendResult encrypts all four fields and POSTs to the hub's
// /api/v1/hub/result endpoint, satisfying proving.ResultForwarder
// structurally.
func (f *Forwarder) SendResult(ctx context.Context, projectName, proofHash string, duration time.Duration, verifiers []string) error {
	envelope, err := f.KeyCache.Get()
	if err != nil {
		return fmt.Errorf("resultforward: key cache unavailable: %w", err)
	}

	projectCT, err := envelope.Encrypt([]byte(projectName))
	if err != nil {
		return fmt.Errorf("resultforward: encrypt project_name: %w", err)
	}
	hashCT, err := envelope.Encrypt([]byte(proofHash))
	if err != nil {
		return fmt.Errorf("resultforward: encrypt proof_hash: %w", err)
	}
	durationCT, err := envelope.Encrypt([]byte(strconv.FormatInt(duration.Milliseconds(), 10)))
	if err != nil {
		return fmt.Errorf("resultforward: encrypt duration: %w", err)
	}
	verifiersJSON, err := json.Marshal(verifiers)
	if err != nil {
		return fmt.Errorf("resultforward: marshal verifiers: %w", err)
	}
	verifiersCT, err := envelope.Encrypt(verifiersJSON)
	if err != nil {
		return fmt.Errorf("resultforward: encrypt verifiers: %w", err)
	}

	body, err := json.Marshal(resultBody{
		ProjectName: projectCT,
		ProofHash:   hashCT,
		Duration:    durationCT,
		Verifiers:   verifiersCT,
	})
	if err != nil {
		return fmt.Errorf("resultforward: marshal body: %w", err)
	}

	return f.post(ctx, "/api/v1/hub/result", http.MethodPost, body)
}

// UpdateVerifier encrypts proof_hash and verifiers and PUTs to the hub's
// /api/v1/hub/verifier endpoint.
func (f *Forwarder) UpdateVerifier(ctx context.Context, proofHash string, verifiers []string) error {
	envelope, err := f.KeyCache.Get()
	if err != nil {
		return fmt.Errorf("resultforward: key cache unavailable: %w", err)
	}

	hashCT, err := envelope.Encrypt([]byte(proofHash))
	if err != nil {
		return fmt.Errorf("resultforward: encrypt proof_hash: %w", err)
	}
	verifiersJSON, err := json.Marshal(verifiers)
	if err != nil {
		return fmt.Errorf("resultforward: marshal verifiers: %w", err)
	}
	verifiersCT, err := envelope.Encrypt(verifiersJSON)
	if err != nil {
		return fmt.Errorf("resultforward: encrypt verifiers: %w", err)
	}

	body, err := json.Marshal(verifierBody{ProofHash: hashCT, Verifiers: verifiersCT})
	if err != nil {
		return fmt.Errorf("resultforward: marshal body: %w", err)
	}

	return f.post(ctx, "/api/v1/hub/verifier", http.MethodPut, body)
}

func (f *Forwarder) post(ctx context.Context, path, method string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, f.HubAPIURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("resultforward: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("resultforward: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("resultforward: hub rejected %s with status %d", path, resp.StatusCode)
	}
	return nil
}
