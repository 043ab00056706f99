// Package proving implements the node-side Proving Dispatcher (spec C10):
// decrypts and validates an incoming proof request, dispatches it to the
// configured backend, and forwards the result to the hub.
package proving

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
)

// TaskType names the kind of proof being requested. ZKLOGIN and TIGA carry
// the special-cased validation rules in spec.md §4.10; any other value is
// rejected with ErrUnsupportedTaskType.
type TaskType string

const (
	TaskZKLogin TaskType = "ZKLOGIN"
	TaskTIGA    TaskType = "TIGA"
)

// privilegedTIGACircuits are the circuit ids spec.md allows to bypass the
// TIGA "no modules" restriction unconditionally.
var privilegedTIGACircuits = map[string]bool{
	"tiga-core-v1":       true,
	"tiga-privileged-v1": true,
}

// ErrCode enumerates the node-side rejection reasons prove() can return,
// mapped to respenvelope codes at the HTTP/RPC boundary.
type ErrCode int

const (
	ErrNone ErrCode = iota
	ErrPrivateKeyNotFound
	ErrPrivateKeyInvalid
	ErrUnsupportedOAuth
	ErrUnauthorizedPayload
	ErrUnsupportedProver
	ErrUnsupportedTaskType
	ErrProverNotResponding
)

// ProveRequest is the decoded form of a /prove* call, independent of
// whether it arrived over HTTP or the binary RPC surface.
type ProveRequest struct {
	TaskType      TaskType
	ProverID      ProverID
	CircuitID     string
	Payload       []byte
	IsEncrypted   bool
	Auth          string
	OAuthProvider string
	Length        int64
}

// ProofResult is what prove() returns on success.
type ProofResult struct {
	Proof         []byte
	PublicWitness []string
	ProjectName   string
	Verifiers     []string
	Duration      time.Duration
}

// ProjectEntry is one row of the local project-tag mapping keyed by the
// last element of a proof's public witness.
type ProjectEntry struct {
	ProjectName string
	Verifiers   []string
}

// ResultForwarder is the small interface the dispatcher uses to report a
// completed proof back to the hub. Defined here (not imported from
// resultforward) so proving never depends on the transport package — it's
// satisfied structurally by resultforward.Forwarder.
type ResultForwarder interface {
	SendResult(ctx context.Context, projectName, proofHash string, duration time.Duration, verifiers []string) error
}

// Dispatcher implements prove(): decrypt, validate, dispatch, forward.
type Dispatcher struct {
	CryptoEnvelope *cryptoenvelope.KeyCache // node's crypto key pair, for decrypting payloads
	Validators     *ValidatorRegistry
	Backends       *BackendRegistry
	ProjectMap     map[string]ProjectEntry // public-witness tag -> (project, verifiers)
	Forwarder      ResultForwarder
	Logger         *slog.Logger
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(keyCache *cryptoenvelope.KeyCache, validators *ValidatorRegistry, backends *BackendRegistry) *Dispatcher {
	return &Dispatcher{
		CryptoEnvelope: keyCache,
		Validators:     validators,
		Backends:       backends,
		ProjectMap:     make(map[string]ProjectEntry),
		Logger:         slog.Default(),
	}
}

// Prove runs the full node-side proving pipeline for one request.
func (d *Dispatcher) Prove(ctx context.Context, req ProveRequest, proofHash string) (*ProofResult, ErrCode, error) {
	payload := req.Payload

	if req.IsEncrypted {
		envelope, err := d.CryptoEnvelope.Get()
		if err != nil {
			return nil, ErrPrivateKeyNotFound, fmt.Errorf("proving: crypto key unavailable: %w", err)
		}
		plain, err := envelope.Decrypt(string(payload))
		if err != nil {
			return nil, ErrPrivateKeyInvalid, fmt.Errorf("proving: decrypt payload: %w", err)
		}
		payload = plain
	}

	if code, err := d.validate(req, payload); code != ErrNone {
		return nil, code, err
	}

	backend, ok := d.Backends.Resolve(req.ProverID)
	if !ok {
		return nil, ErrUnsupportedProver, fmt.Errorf("proving: unsupported prover_id %q", req.ProverID)
	}

	start := time.Now()
	proof, witness, err := backend.GenerateProof(ctx, req.CircuitID, payload)
	duration := time.Since(start)
	if err != nil {
		return nil, ErrProverNotResponding, fmt.Errorf("proving: backend call failed: %w", err)
	}

	result := &ProofResult{Proof: proof, PublicWitness: witness, Duration: duration}

	if len(proof) > 0 && len(witness) > 0 {
		tag := witness[len(witness)-1]
		if entry, ok := d.ProjectMap[tag]; ok {
			result.ProjectName = entry.ProjectName
			result.Verifiers = entry.Verifiers
		}

		if d.Forwarder != nil && result.ProjectName != "" {
			if err := d.Forwarder.SendResult(ctx, result.ProjectName, proofHash, duration, result.Verifiers); err != nil {
				d.Logger.Warn("proving: forward result to hub failed, dropping", "proof_hash", proofHash, "error", err)
			}
		}
	}

	return result, ErrNone, nil
}

func (d *Dispatcher) validate(req ProveRequest, payload []byte) (ErrCode, error) {
	switch req.TaskType {
	case TaskZKLogin:
		validator, ok := d.Validators.Resolve(req.CircuitID, req.OAuthProvider)
		if !ok {
			return ErrUnsupportedOAuth, fmt.Errorf("proving: unsupported oauth provider %q", req.OAuthProvider)
		}
		if !validator.Verify(payload) {
			return ErrUnauthorizedPayload, fmt.Errorf("proving: payload failed validation")
		}
		return ErrNone, nil

	case TaskTIGA:
		if privilegedTIGACircuits[req.CircuitID] {
			return ErrNone, nil
		}
		if payloadHasModules(payload) {
			return ErrUnauthorizedPayload, fmt.Errorf("proving: TIGA payload carries modules without a privileged circuit")
		}
		return ErrNone, nil

	default:
		return ErrUnsupportedTaskType, fmt.Errorf("proving: unsupported task_type %q", req.TaskType)
	}
}

// payloadHasModules reports whether payload, if it decodes as a JSON
// object, has a non-null "modules" key. A non-JSON or unparsable payload
// is treated as not carrying modules.
func payloadHasModules(payload []byte) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return false
	}
	raw, ok := obj["modules"]
	if !ok {
		return false
	}
	return string(raw) != "null"
}
