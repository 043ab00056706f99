// Package heartbeat implements the node-side Heartbeat Loop (spec C8): a
// periodic encrypted re-registration of the node's own endpoints with the
// hub, running until the process is told to stop.
package heartbeat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zkprover/controlplane/internal/cryptoenvelope"
)

// Loop periodically POSTs this node's own (grpc_addr, http_addr), encrypted
// under the hub's session public key, to the hub's registration endpoint.
// Transport errors are logged and the loop continues on the next tick —
// spec.md §4.8 explicitly never terminates the loop on a failed heartbeat.
type Loop struct {
	HubAPIURL  string
	GRPCAddr   string
	HTTPAddr   string
	Interval   time.Duration
	KeyCache   *cryptoenvelope.KeyCache // node's view of the hub's session public key
	HTTPClient *http.Client
	Logger     *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewLoop builds a heartbeat loop with the 10s default interval.
func NewLoop(hubAPIURL, grpcAddr, httpAddr string, keyCache *cryptoenvelope.KeyCache) *Loop {
	return &Loop{
		HubAPIURL:  hubAPIURL,
		GRPCAddr:   grpcAddr,
		HTTPAddr:   httpAddr,
		Interval:   10 * time.Second,
		KeyCache:   keyCache,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Logger:     slog.Default(),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the heartbeat goroutine.
func (l *Loop) Start() {
	go l.run()
}

// Stop signals the loop to exit and waits for it to finish.
func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

func (l *Loop) run() {
	defer close(l.doneCh)
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	l.beat()
	for {
		select {
		case <-ticker.C:
			l.beat()
		case <-l.stopCh:
			return
		}
	}
}

type registerBody struct {
	GRPCInfo string `json:"grpc_info"`
	HTTPInfo string `json:"http_info"`
}

func (l *Loop) beat() {
	envelope, err := l.KeyCache.Get()
	if err != nil {
		l.Logger.Warn("heartbeat: key cache unavailable", "error", err)
		return
	}

	grpcCipher, err := envelope.Encrypt([]byte(l.GRPCAddr))
	if err != nil {
		l.Logger.Warn("heartbeat: encrypt grpc_info failed", "error", err)
		return
	}
	httpCipher, err := envelope.Encrypt([]byte(l.HTTPAddr))
	if err != nil {
		l.Logger.Warn("heartbeat: encrypt http_info failed", "error", err)
		return
	}

	body, err := json.Marshal(registerBody{GRPCInfo: grpcCipher, HTTPInfo: httpCipher})
	if err != nil {
		l.Logger.Warn("heartbeat: marshal body failed", "error", err)
		return
	}

	resp, err := l.HTTPClient.Post(fmt.Sprintf("%s/api/v1/hub/node", l.HubAPIURL), "application/json", bytes.NewReader(body))
	if err != nil {
		l.Logger.Warn("heartbeat: post to hub failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		l.Logger.Warn("heartbeat: hub rejected registration", "status", resp.StatusCode)
	}
}
