package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/zkprover/controlplane/internal/respenvelope"
)

type registerBody struct {
	GRPCInfo string `json:"grpc_info"`
	HTTPInfo string `json:"http_info"`
}

// HandleRegisterNode implements POST /api/v1/hub/node: decrypt the
// candidate's endpoints, liveness-probe both, and admit into the registry
// only if both probes succeed.
func (e *Engine) HandleRegisterNode(w http.ResponseWriter, r *http.Request) {
	envelope, err := e.KeyCache.Get()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, respenvelope.Err(respenvelope.CodePrivateKeyMissing, "PRIVATE_KEY_NOT_EXIST"))
		return
	}

	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeArgsInvalid, "ARGS_INVALID"))
		return
	}

	grpcAddr, err := envelope.Decrypt(body.GRPCInfo)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeDecryptionFailed, "DECRYPTION_FAILED"))
		return
	}
	httpAddr, err := envelope.Decrypt(body.HTTPInfo)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeDecryptionFailed, "DECRYPTION_FAILED"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), e.Liveness.Timeout)
	defer cancel()
	result := e.Liveness.Check(ctx, string(grpcAddr), string(httpAddr))
	if !result.OK() {
		var failed []string
		if !result.RPCOK {
			failed = append(failed, "grpc")
		}
		if !result.HTTPOK {
			failed = append(failed, "http")
		}
		msg := fmt.Sprintf("REGISTER_FAILED: %s endpoint(s) unreachable", strings.Join(failed, ","))
		writeJSON(w, http.StatusBadRequest, respenvelope.Err(respenvelope.CodeRegisterFailed, msg))
		return
	}

	e.Registry.Add(string(grpcAddr), string(httpAddr))
	e.Metrics.RegistrySize.Set(float64(e.Registry.Len()))
	writeJSON(w, http.StatusOK, respenvelope.OK("Successfully", nil))
}
