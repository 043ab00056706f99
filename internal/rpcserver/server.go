// Package rpcserver implements the node's binary RPC surface (spec.md §6):
// a thin grpc.ServiceDesc-backed adapter translating pb.ProverService
// calls onto the same proving.Dispatcher the HTTP handlers use, and
// answering prove rejections with the same respenvelope codes. Two
// differences remain: a rejected RPC prove carries the dispatcher's error
// text as msg rather than the code name, and RPC prove calls pass an empty
// proof hash to the dispatcher (ProveRequest has no proof-hash field).
package rpcserver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
	"github.com/zkprover/controlplane/internal/proving"
	"github.com/zkprover/controlplane/internal/respenvelope"
	"github.com/zkprover/controlplane/internal/resultforward"
	"github.com/zkprover/controlplane/pb"
)

// Server implements pb.ProverServiceServer.
type Server struct {
	pb.UnimplementedProverServiceServer

	Dispatcher *proving.Dispatcher
	CryptoKeys *cryptoenvelope.KeyCache // crypto key pair, for GetPublicKey
	Forwarder  *resultforward.Forwarder
	Logger     *slog.Logger
}

// NewServer builds a Server.
func NewServer(d *proving.Dispatcher, cryptoKeys *cryptoenvelope.KeyCache, fwd *resultforward.Forwarder) *Server {
	return &Server{Dispatcher: d, CryptoKeys: cryptoKeys, Forwarder: fwd, Logger: slog.Default()}
}

func (s *Server) Ping(ctx context.Context, _ *pb.PingRequest) (*pb.PingResponse, error) {
	return &pb.PingResponse{Code: 0, Msg: "Pong"}, nil
}

func (s *Server) ProveNosha256(ctx context.Context, req *pb.ProveRequest) (*pb.ProveResponse, error) {
	return s.prove(ctx, req)
}

func (s *Server) ProveNosha256WithWitness(ctx context.Context, req *pb.ProveRequest) (*pb.ProveResponse, error) {
	return s.prove(ctx, req)
}

func (s *Server) ProveNosha256Offchain(ctx context.Context, req *pb.ProveRequest) (*pb.ProveResponse, error) {
	return s.prove(ctx, req)
}

func (s *Server) Prove(ctx context.Context, req *pb.ProveRequest) (*pb.ProveResponse, error) {
	return s.prove(ctx, req)
}

// proveErrCodes maps dispatcher rejections to the respenvelope codes the
// HTTP /prove* handlers return for the same rejection.
var proveErrCodes = map[proving.ErrCode]int{
	proving.ErrPrivateKeyNotFound:  respenvelope.CodePrivateKeyNotFound,
	proving.ErrPrivateKeyInvalid:   respenvelope.CodePrivateKeyInvalid,
	proving.ErrUnsupportedOAuth:    respenvelope.CodeUnsupportedOAuth,
	proving.ErrUnauthorizedPayload: respenvelope.CodeUnauthorizedPayload,
	proving.ErrUnsupportedProver:   respenvelope.CodeUnsupportedProver,
	proving.ErrUnsupportedTaskType: respenvelope.CodeUnsupportedTaskType,
	proving.ErrProverNotResponding: respenvelope.CodeProverNotResponding,
}

func (s *Server) prove(ctx context.Context, req *pb.ProveRequest) (*pb.ProveResponse, error) {
	result, code, err := s.Dispatcher.Prove(ctx, proving.ProveRequest{
		TaskType:      proving.TaskType(req.TaskType),
		ProverID:      proving.ProverID(req.ProverID),
		CircuitID:     req.CircuitID,
		Payload:       req.Payload,
		IsEncrypted:   req.IsEncrypted,
		Auth:          req.Auth,
		OAuthProvider: req.OAuthProvider,
		Length:        req.Length,
	}, "")

	if err != nil {
		s.Logger.Warn("rpcserver: prove failed", "error", err, "code", code)
		respCode, ok := proveErrCodes[code]
		if !ok {
			respCode = respenvelope.CodeRequestError
		}
		return &pb.ProveResponse{Code: int32(respCode), Msg: err.Error()}, nil
	}

	return &pb.ProveResponse{
		Code:          0,
		Msg:           "Successfully",
		Proof:         result.Proof,
		PublicWitness: result.PublicWitness,
	}, nil
}

func (s *Server) GetPublicKey(ctx context.Context, _ *pb.GetPublicKeyRequest) (*pb.GetPublicKeyResponse, error) {
	envelope, err := s.CryptoKeys.Get()
	if err != nil {
		return &pb.GetPublicKeyResponse{Code: -1007}, nil
	}
	fp, err := envelope.Fingerprint()
	if err != nil {
		return &pb.GetPublicKeyResponse{Code: -1007}, nil
	}
	// The fingerprint, not the raw PEM, is returned here — this rendition
	// treats the key material itself as something exchanged out of band
	// at provisioning time, matching spec.md's "session key pair" model
	// where nodes are configured with the hub's public key directly.
	return &pb.GetPublicKeyResponse{Code: 0, PublicKey: fp}, nil
}

func (s *Server) UpdateVerifier(ctx context.Context, req *pb.UpdateVerifierRequest) (*pb.UpdateVerifierResponse, error) {
	envelope, err := s.CryptoKeys.Get()
	if err != nil {
		return &pb.UpdateVerifierResponse{Code: -1007, Msg: "PUBLIC_KEY_NOT_EXIST"}, nil
	}
	proofHash, err1 := envelope.Decrypt(req.ProofHash)
	verifiersRaw, err2 := envelope.Decrypt(req.Verifiers)
	if err1 != nil || err2 != nil {
		return &pb.UpdateVerifierResponse{Code: -1008, Msg: "DECRYPTION_FAILED"}, nil
	}

	var verifiers []string
	if err := json.Unmarshal(verifiersRaw, &verifiers); err != nil {
		verifiers = []string{string(verifiersRaw)}
	}

	if err := s.Forwarder.UpdateVerifier(ctx, string(proofHash), verifiers); err != nil {
		s.Logger.Warn("rpcserver: forward verifier update failed", "error", err)
		return &pb.UpdateVerifierResponse{Code: -1000, Msg: "forward failed"}, nil
	}
	return &pb.UpdateVerifierResponse{Code: 0, Msg: "Successfully"}, nil
}
