package pb

import (
	"context"

	"google.golang.org/grpc"
)

// ProvingBackendRequest/Response model the small RPC surface spec.md §1
// treats as an external collaborator contract: a node hands off a
// validated, decrypted payload to a proving backend (CIRCOM or PRIVATE)
// and gets a proof plus its public witness back.
type ProvingBackendRequest struct {
	CircuitID string
	Payload   []byte
}

type ProvingBackendResponse struct {
	Proof         []byte
	PublicWitness []string
}

// ProvingBackendClient is the RPC surface the Proving Dispatcher (C10)
// calls over the pooled connection managed by the RPC Connection Pool
// (C13). It is intentionally minimal — proving algorithms themselves are
// out of scope.
type ProvingBackendClient interface {
	GenerateProof(ctx context.Context, in *ProvingBackendRequest, opts ...grpc.CallOption) (*ProvingBackendResponse, error)
}

type provingBackendClient struct {
	cc *grpc.ClientConn
}

// NewProvingBackendClient wraps an established connection to a proving
// backend.
func NewProvingBackendClient(cc *grpc.ClientConn) ProvingBackendClient {
	return &provingBackendClient{cc: cc}
}

func (c *provingBackendClient) GenerateProof(ctx context.Context, in *ProvingBackendRequest, opts ...grpc.CallOption) (*ProvingBackendResponse, error) {
	out := new(ProvingBackendResponse)
	err := c.cc.Invoke(ctx, "/pb.ProvingBackend/GenerateProof", in, out, withJSONCodec(opts)...)
	return out, err
}
