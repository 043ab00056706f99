package registry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/zkprover/controlplane/pb"
)

const defaultLivenessTimeout = 6 * time.Second

// LivenessProbe checks that a candidate node's two endpoints are reachable
// before it is admitted into the registry (spec C5). Both probes run
// concurrently under a single shared deadline; either failing rejects the
// node.
type LivenessProbe struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewLivenessProbe builds a probe with the 6s default shared deadline.
func NewLivenessProbe() *LivenessProbe {
	return &LivenessProbe{
		Timeout:    defaultLivenessTimeout,
		HTTPClient: &http.Client{Timeout: defaultLivenessTimeout},
	}
}

// Result reports the outcome of both probes.
type Result struct {
	RPCOK  bool
	HTTPOK bool
}

// OK reports whether both probes succeeded.
func (r Result) OK() bool {
	return r.RPCOK && r.HTTPOK
}

// Check runs the RPC and HTTP probes concurrently against grpcAddr and
// httpAddr, joining on a single shared deadline.
func (p *LivenessProbe) Check(ctx context.Context, grpcAddr, httpAddr string) Result {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	rpcCh := make(chan bool, 1)
	httpCh := make(chan bool, 1)

	go func() { rpcCh <- p.checkRPC(ctx, grpcAddr) }()
	go func() { httpCh <- p.checkHTTP(ctx, httpAddr) }()

	return Result{
		RPCOK:  <-rpcCh,
		HTTPOK: <-httpCh,
	}
}

func (p *LivenessProbe) checkRPC(ctx context.Context, addr string) bool {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return false
	}
	defer conn.Close()

	client := pb.NewProverServiceClient(conn)
	_, err = client.Ping(ctx, &pb.PingRequest{})
	return err == nil
}

func (p *LivenessProbe) checkHTTP(ctx context.Context, addr string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/ping", addr), nil)
	if err != nil {
		return false
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
