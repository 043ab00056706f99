// Package identity provides the ZKLOGIN payload validator backed by
// SPIFFE/SPIRE workload identity: a zkLogin payload is accepted only if it
// carries a SPIFFE SVID the local SPIRE agent recognizes.
package identity

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
)

// SPIFFEValidator implements the proving package's PayloadValidator
// interface (Verify(payload []byte) bool) by checking a payload's claimed
// SPIFFE ID against the local SPIRE agent's issued SVID. Satisfied
// structurally — this package does not import proving to avoid a cycle.
type SPIFFEValidator struct {
	source *workloadapi.X509Source
}

// NewSPIFFEValidator connects to the SPIRE agent at socketPath with a
// bounded timeout so a missing agent never blocks process startup; callers
// fall back to a structural validator on error (see NewFallbackValidator).
func NewSPIFFEValidator(socketPath string) (*SPIFFEValidator, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	source, err := workloadapi.NewX509Source(ctx, workloadapi.WithClientOptions(workloadapi.WithAddr(socketPath)))
	if err != nil {
		return nil, fmt.Errorf("identity: connect to SPIRE agent at %s: %w", socketPath, err)
	}

	slog.Info("identity: connected to SPIRE agent", "socket_path", socketPath)
	return &SPIFFEValidator{source: source}, nil
}

// Verify reports whether payload's SPIFFE ID (the entire payload, as is,
// is treated as the claimed ID in the zkLogin flow) matches an SVID the
// local SPIRE agent actually issued. Any parse or lookup failure is a
// rejection, never a panic or an error return — PayloadValidator.Verify is
// a pure predicate.
func (v *SPIFFEValidator) Verify(payload []byte) bool {
	id, err := spiffeid.FromString(string(payload))
	if err != nil {
		return false
	}

	svid, err := v.source.GetX509SVID()
	if err != nil {
		return false
	}

	return svid.ID.String() == id.String()
}

// Fingerprint returns a diagnostic hash of the currently held SVID
// certificate, used only in log lines — never part of the verify decision.
func (v *SPIFFEValidator) Fingerprint() (uint64, error) {
	svid, err := v.source.GetX509SVID()
	if err != nil {
		return 0, fmt.Errorf("identity: get SVID: %w", err)
	}
	if len(svid.Certificates) == 0 {
		return 0, fmt.Errorf("identity: SVID has no certificates")
	}

	sum := sha256.Sum256(svid.Certificates[0].Raw)
	var result uint64
	for i := 0; i < 8; i++ {
		result = (result << 8) | uint64(sum[i])
	}
	return result, nil
}

// Close releases the underlying SVID source.
func (v *SPIFFEValidator) Close() error {
	return v.source.Close()
}

// FallbackValidator is the structural/no-op validator used when no SPIRE
// agent socket is reachable at startup: it accepts any non-empty payload
// shaped like a SPIFFE ID string, matching the teacher's own
// "using structural validation fallback" startup behavior rather than
// refusing to boot.
type FallbackValidator struct{}

// NewFallbackValidator builds the structural fallback.
func NewFallbackValidator() *FallbackValidator {
	return &FallbackValidator{}
}

func (FallbackValidator) Verify(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	_, err := spiffeid.FromString(string(payload))
	return err == nil
}
