package pb

import (
	"context"

	"google.golang.org/grpc"
)

// Prover service types. These are hand-written to match what protoc would
// generate for the node's binary RPC surface, without a .proto file or a
// protoc run.

type PingRequest struct{}

type PingResponse struct {
	Code int32
	Msg  string
}

type ProveRequest struct {
	TaskType       string
	ProverID       string
	CircuitID      string
	Payload        []byte
	IsEncrypted    bool
	Auth           string
	OAuthProvider  string
	Length         int64
}

type ProveResponse struct {
	Code          int32
	Msg           string
	Proof         []byte
	PublicWitness []string
}

type GetPublicKeyRequest struct{}

type GetPublicKeyResponse struct {
	Code      int32
	PublicKey string // hex SHA-256 fingerprint of the node's public key, not the key itself
}

type UpdateVerifierRequest struct {
	ProofHash string // base85 ciphertext
	Verifiers string // base85 ciphertext
}

type UpdateVerifierResponse struct {
	Code int32
	Msg  string
}

// ProverServiceClient is the binary RPC surface a hub or peer calls against
// a prover node: liveness, the four proving variants, key exchange, and
// verifier updates (spec.md §6).
type ProverServiceClient interface {
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	ProveNosha256(ctx context.Context, in *ProveRequest, opts ...grpc.CallOption) (*ProveResponse, error)
	ProveNosha256WithWitness(ctx context.Context, in *ProveRequest, opts ...grpc.CallOption) (*ProveResponse, error)
	ProveNosha256Offchain(ctx context.Context, in *ProveRequest, opts ...grpc.CallOption) (*ProveResponse, error)
	Prove(ctx context.Context, in *ProveRequest, opts ...grpc.CallOption) (*ProveResponse, error)
	GetPublicKey(ctx context.Context, in *GetPublicKeyRequest, opts ...grpc.CallOption) (*GetPublicKeyResponse, error)
	UpdateVerifier(ctx context.Context, in *UpdateVerifierRequest, opts ...grpc.CallOption) (*UpdateVerifierResponse, error)
}

// ProverServiceServer is the node-side implementation contract.
type ProverServiceServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	ProveNosha256(context.Context, *ProveRequest) (*ProveResponse, error)
	ProveNosha256WithWitness(context.Context, *ProveRequest) (*ProveResponse, error)
	ProveNosha256Offchain(context.Context, *ProveRequest) (*ProveResponse, error)
	Prove(context.Context, *ProveRequest) (*ProveResponse, error)
	GetPublicKey(context.Context, *GetPublicKeyRequest) (*GetPublicKeyResponse, error)
	UpdateVerifier(context.Context, *UpdateVerifierRequest) (*UpdateVerifierResponse, error)
}

// UnimplementedProverServiceServer embeds into a concrete server so adding
// a new RPC doesn't break existing implementations, the same forward-compat
// shape protoc-gen-go-grpc emits.
type UnimplementedProverServiceServer struct{}

func (UnimplementedProverServiceServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return &PingResponse{Code: 0, Msg: "Pong"}, nil
}
func (UnimplementedProverServiceServer) ProveNosha256(context.Context, *ProveRequest) (*ProveResponse, error) {
	return nil, nil
}
func (UnimplementedProverServiceServer) ProveNosha256WithWitness(context.Context, *ProveRequest) (*ProveResponse, error) {
	return nil, nil
}
func (UnimplementedProverServiceServer) ProveNosha256Offchain(context.Context, *ProveRequest) (*ProveResponse, error) {
	return nil, nil
}
func (UnimplementedProverServiceServer) Prove(context.Context, *ProveRequest) (*ProveResponse, error) {
	return nil, nil
}
func (UnimplementedProverServiceServer) GetPublicKey(context.Context, *GetPublicKeyRequest) (*GetPublicKeyResponse, error) {
	return nil, nil
}
func (UnimplementedProverServiceServer) UpdateVerifier(context.Context, *UpdateVerifierRequest) (*UpdateVerifierResponse, error) {
	return nil, nil
}

// proverServiceClient is the gRPC-backed ProverServiceClient implementation.
type proverServiceClient struct {
	cc *grpc.ClientConn
}

// NewProverServiceClient wraps an established connection.
func NewProverServiceClient(cc *grpc.ClientConn) ProverServiceClient {
	return &proverServiceClient{cc: cc}
}

func (c *proverServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	out := new(PingResponse)
	err := c.cc.Invoke(ctx, "/pb.ProverService/Ping", in, out, withJSONCodec(opts)...)
	return out, err
}

func (c *proverServiceClient) ProveNosha256(ctx context.Context, in *ProveRequest, opts ...grpc.CallOption) (*ProveResponse, error) {
	out := new(ProveResponse)
	err := c.cc.Invoke(ctx, "/pb.ProverService/ProveNosha256", in, out, withJSONCodec(opts)...)
	return out, err
}

func (c *proverServiceClient) ProveNosha256WithWitness(ctx context.Context, in *ProveRequest, opts ...grpc.CallOption) (*ProveResponse, error) {
	out := new(ProveResponse)
	err := c.cc.Invoke(ctx, "/pb.ProverService/ProveNosha256WithWitness", in, out, withJSONCodec(opts)...)
	return out, err
}

func (c *proverServiceClient) ProveNosha256Offchain(ctx context.Context, in *ProveRequest, opts ...grpc.CallOption) (*ProveResponse, error) {
	out := new(ProveResponse)
	err := c.cc.Invoke(ctx, "/pb.ProverService/ProveNosha256Offchain", in, out, withJSONCodec(opts)...)
	return out, err
}

func (c *proverServiceClient) Prove(ctx context.Context, in *ProveRequest, opts ...grpc.CallOption) (*ProveResponse, error) {
	out := new(ProveResponse)
	err := c.cc.Invoke(ctx, "/pb.ProverService/Prove", in, out, withJSONCodec(opts)...)
	return out, err
}

func (c *proverServiceClient) GetPublicKey(ctx context.Context, in *GetPublicKeyRequest, opts ...grpc.CallOption) (*GetPublicKeyResponse, error) {
	out := new(GetPublicKeyResponse)
	err := c.cc.Invoke(ctx, "/pb.ProverService/GetPublicKey", in, out, withJSONCodec(opts)...)
	return out, err
}

func (c *proverServiceClient) UpdateVerifier(ctx context.Context, in *UpdateVerifierRequest, opts ...grpc.CallOption) (*UpdateVerifierResponse, error) {
	out := new(UpdateVerifierResponse)
	err := c.cc.Invoke(ctx, "/pb.ProverService/UpdateVerifier", in, out, withJSONCodec(opts)...)
	return out, err
}

// RegisterProverServiceServer registers srv's methods on the given
// *grpc.Server under the pb.ProverService name, mirroring what protoc-
// gen-go-grpc would emit for a real .proto definition.
func RegisterProverServiceServer(s *grpc.Server, srv ProverServiceServer) {
	s.RegisterService(&proverServiceDesc, srv)
}

var proverServiceDesc = grpc.ServiceDesc{
	ServiceName: "pb.ProverService",
	HandlerType: (*ProverServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: pingHandler},
		{MethodName: "ProveNosha256", Handler: proveNosha256Handler},
		{MethodName: "ProveNosha256WithWitness", Handler: proveNosha256WithWitnessHandler},
		{MethodName: "ProveNosha256Offchain", Handler: proveNosha256OffchainHandler},
		{MethodName: "Prove", Handler: proveHandler},
		{MethodName: "GetPublicKey", Handler: getPublicKeyHandler},
		{MethodName: "UpdateVerifier", Handler: updateVerifierHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pb/prover.proto",
}

func pingHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProverServiceServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/pb.ProverService/Ping"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProverServiceServer).Ping(ctx, req.(*PingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func proveNosha256Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ProveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProverServiceServer).ProveNosha256(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/pb.ProverService/ProveNosha256"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProverServiceServer).ProveNosha256(ctx, req.(*ProveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func proveNosha256WithWitnessHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ProveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProverServiceServer).ProveNosha256WithWitness(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/pb.ProverService/ProveNosha256WithWitness"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProverServiceServer).ProveNosha256WithWitness(ctx, req.(*ProveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func proveNosha256OffchainHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ProveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProverServiceServer).ProveNosha256Offchain(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/pb.ProverService/ProveNosha256Offchain"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProverServiceServer).ProveNosha256Offchain(ctx, req.(*ProveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func proveHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ProveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProverServiceServer).Prove(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/pb.ProverService/Prove"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProverServiceServer).Prove(ctx, req.(*ProveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getPublicKeyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetPublicKeyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProverServiceServer).GetPublicKey(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/pb.ProverService/GetPublicKey"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProverServiceServer).GetPublicKey(ctx, req.(*GetPublicKeyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func updateVerifierHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UpdateVerifierRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProverServiceServer).UpdateVerifier(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/pb.ProverService/UpdateVerifier"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProverServiceServer).UpdateVerifier(ctx, req.(*UpdateVerifierRequest))
	}
	return interceptor(ctx, in, info, handler)
}
