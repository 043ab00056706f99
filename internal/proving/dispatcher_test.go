package proving

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
)

type fakeBackend struct {
	proof   []byte
	witness []string
	err     error
}

func (f fakeBackend) GenerateProof(ctx context.Context, circuitID string, payload []byte) ([]byte, []string, error) {
	return f.proof, f.witness, f.err
}

type fakeForwarder struct {
	called      bool
	projectName string
	proofHash   string
	verifiers   []string
	err         error
}

func (f *fakeForwarder) SendResult(ctx context.Context, projectName, proofHash string, duration time.Duration, verifiers []string) error {
	f.called = true
	f.projectName = projectName
	f.proofHash = proofHash
	f.verifiers = verifiers
	return f.err
}

func testKeyCache(t *testing.T) *cryptoenvelope.KeyCache {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	envelope := cryptoenvelope.NewEnvelope(priv, &priv.PublicKey)
	return cryptoenvelope.NewStaticKeyCache(envelope)
}

func newTestDispatcher(t *testing.T, backend ProvingBackend) *Dispatcher {
	t.Helper()
	d := NewDispatcher(testKeyCache(t), NewValidatorRegistry(), NewBackendRegistry(map[ProverID]ProvingBackend{
		ProverCircom: backend,
	}))
	d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return d
}

func TestDispatcher_ProveLooksUpProjectAndForwardsOnSuccess(t *testing.T) {
	backend := fakeBackend{proof: []byte("proof"), witness: []string{"a", "project-tag"}}
	d := newTestDispatcher(t, backend)
	d.ProjectMap["project-tag"] = ProjectEntry{ProjectName: "demo", Verifiers: []string{"v1"}}
	fwd := &fakeForwarder{}
	d.Forwarder = fwd

	result, code, err := d.Prove(context.Background(), ProveRequest{ProverID: ProverCircom, TaskType: TaskTIGA, CircuitID: "tiga-core-v1"}, "0xhash")
	require.NoError(t, err)
	assert.Equal(t, ErrNone, code)
	assert.Equal(t, "demo", result.ProjectName)
	assert.True(t, fwd.called)
	assert.Equal(t, "0xhash", fwd.proofHash)
	assert.Equal(t, []string{"v1"}, fwd.verifiers)
}

func TestDispatcher_ProveReturnsProofEvenWhenForwardFails(t *testing.T) {
	backend := fakeBackend{proof: []byte("proof"), witness: []string{"project-tag"}}
	d := newTestDispatcher(t, backend)
	d.ProjectMap["project-tag"] = ProjectEntry{ProjectName: "demo"}
	fwd := &fakeForwarder{err: errors.New("hub unreachable")}
	d.Forwarder = fwd

	result, code, err := d.Prove(context.Background(), ProveRequest{ProverID: ProverCircom, TaskType: TaskTIGA, CircuitID: "tiga-core-v1"}, "0xhash")
	require.NoError(t, err)
	assert.Equal(t, ErrNone, code)
	assert.Equal(t, []byte("proof"), result.Proof)
	assert.True(t, fwd.called)
}

func TestDispatcher_ProveUnknownProverIDFails(t *testing.T) {
	d := newTestDispatcher(t, fakeBackend{})

	_, code, err := d.Prove(context.Background(), ProveRequest{ProverID: ProverID("unknown"), TaskType: TaskTIGA, CircuitID: "tiga-core-v1"}, "")
	assert.Equal(t, ErrUnsupportedProver, code)
	assert.Error(t, err)
}

func TestDispatcher_ProveBackendErrorMapsToProverNotResponding(t *testing.T) {
	d := newTestDispatcher(t, fakeBackend{err: errors.New("dial failed")})

	_, code, err := d.Prove(context.Background(), ProveRequest{ProverID: ProverCircom, TaskType: TaskTIGA, CircuitID: "tiga-core-v1"}, "")
	assert.Equal(t, ErrProverNotResponding, code)
	assert.Error(t, err)
}

func TestDispatcher_ProveRejectsUnsupportedTaskType(t *testing.T) {
	d := newTestDispatcher(t, fakeBackend{})

	_, code, err := d.Prove(context.Background(), ProveRequest{ProverID: ProverCircom, TaskType: TaskType("BOGUS")}, "")
	assert.Equal(t, ErrUnsupportedTaskType, code)
	assert.Error(t, err)
}

func TestDispatcher_ProveDecryptsEncryptedPayload(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	env := cryptoenvelope.NewEnvelope(priv, &priv.PublicKey)
	keys := cryptoenvelope.NewStaticKeyCache(env)

	ciphertext, err := env.Encrypt([]byte(`{"x":1}`))
	require.NoError(t, err)

	var captured []byte
	backend := captureBackend{out: &captured}
	d := NewDispatcher(keys, NewValidatorRegistry(), NewBackendRegistry(map[ProverID]ProvingBackend{
		ProverCircom: backend,
	}))
	d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	_, code, err := d.Prove(context.Background(), ProveRequest{
		ProverID:    ProverCircom,
		TaskType:    TaskTIGA,
		CircuitID:   "tiga-core-v1",
		Payload:     []byte(ciphertext),
		IsEncrypted: true,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, ErrNone, code)
	assert.Equal(t, `{"x":1}`, string(captured))
}

type captureBackend struct{ out *[]byte }

func (c captureBackend) GenerateProof(ctx context.Context, circuitID string, payload []byte) ([]byte, []string, error) {
	*c.out = payload
	return []byte("proof"), []string{"w"}, nil
}

func TestDispatcher_ValidateZKLoginRejectsUnresolvedOAuth(t *testing.T) {
	d := newTestDispatcher(t, fakeBackend{})

	code, err := d.validate(ProveRequest{TaskType: TaskZKLogin, OAuthProvider: "nobody"}, nil)
	assert.Equal(t, ErrUnsupportedOAuth, code)
	assert.Error(t, err)
}

func TestDispatcher_ValidateZKLoginRejectsUnauthorizedPayload(t *testing.T) {
	d := newTestDispatcher(t, fakeBackend{})
	d.Validators.BindOAuthProvider("google", stubValidator{ok: false})

	code, err := d.validate(ProveRequest{TaskType: TaskZKLogin, OAuthProvider: "google"}, nil)
	assert.Equal(t, ErrUnauthorizedPayload, code)
	assert.Error(t, err)
}

func TestDispatcher_ValidateZKLoginAcceptsAuthorizedPayload(t *testing.T) {
	d := newTestDispatcher(t, fakeBackend{})
	d.Validators.BindOAuthProvider("google", stubValidator{ok: true})

	code, err := d.validate(ProveRequest{TaskType: TaskZKLogin, OAuthProvider: "google"}, nil)
	assert.Equal(t, ErrNone, code)
	assert.NoError(t, err)
}

func TestDispatcher_ValidateTIGAPrivilegedCircuitBypassesModuleCheck(t *testing.T) {
	d := newTestDispatcher(t, fakeBackend{})

	code, err := d.validate(ProveRequest{TaskType: TaskTIGA, CircuitID: "tiga-core-v1"}, []byte(`{"modules":["a"]}`))
	assert.Equal(t, ErrNone, code)
	assert.NoError(t, err)
}

func TestDispatcher_ValidateTIGARejectsModulesOnUnprivilegedCircuit(t *testing.T) {
	d := newTestDispatcher(t, fakeBackend{})

	code, err := d.validate(ProveRequest{TaskType: TaskTIGA, CircuitID: "tiga-basic"}, []byte(`{"modules":["a"]}`))
	assert.Equal(t, ErrUnauthorizedPayload, code)
	assert.Error(t, err)
}

func TestDispatcher_ValidateTIGAAllowsModulelessPayloadOnUnprivilegedCircuit(t *testing.T) {
	d := newTestDispatcher(t, fakeBackend{})

	code, err := d.validate(ProveRequest{TaskType: TaskTIGA, CircuitID: "tiga-basic"}, []byte(`{"x":1}`))
	assert.Equal(t, ErrNone, code)
	assert.NoError(t, err)
}

func TestPayloadHasModules(t *testing.T) {
	assert.True(t, payloadHasModules([]byte(`{"modules":["a"]}`)))
	assert.False(t, payloadHasModules([]byte(`{"modules":null}`)))
	assert.False(t, payloadHasModules([]byte(`{"x":1}`)))
	assert.False(t, payloadHasModules([]byte(`not json`)))
}
