package service

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"slices"
	"time"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Converter turns a source file into a single output file. One strategy
// exists per source-format family; the orchestrator picks the first
// available one that supports the source extension, so registry order is
// fallback order.
type Converter interface {
	Name() string
	// Available probes whether the backing application or binary is
	// actually reachable on this host
	Available() bool
	// Extensions lists the convertible source extensions, lowercase,
	// without the leading dot
	Extensions() []string
	// Convert writes the converted artifact to dst. The target format
	// is dst's extension. dst must only exist after success.
	Convert(ctx context.Context, src, dst string) error
}

func supports(c Converter, ext string) bool {
	return slices.Contains(c.Extensions(), ext)
}

// DefaultProcessTimeout bounds every external converter subprocess so a
// hung binary cannot block a request forever
const DefaultProcessTimeout = 300 * time.Second

// newSubprocessGate sizes a semaphore to roughly half the CPUs so
// external processes cannot oversubscribe the host
func newSubprocessGate() *semaphore.Weighted {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return semaphore.NewWeighted(int64(n))
}

// runProcess executes one bounded external conversion process. Timeouts
// surface as resource exhaustion, anything else the binary does wrong as
// an external failure.
func runProcess(ctx context.Context, gate *semaphore.Weighted, timeout time.Duration, name string, args ...string) error {
	if err := gate.Acquire(ctx, 1); err != nil {
		return apperr.Wrap(apperr.KindResourceExhausted, "Too many conversions in flight", err)
	}
	defer gate.Release(1)

	if timeout <= 0 {
		timeout = DefaultProcessTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	zap.L().Debug("Running converter process", zap.String("cmd", cmd.String()))

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return apperr.Newf(apperr.KindResourceExhausted, "Conversion timed out after %s", timeout)
		}
		zap.L().Error("Converter process failed",
			zap.String("cmd", name),
			zap.String("stderr", stderr.String()),
			zap.Error(err))
		return apperr.Wrap(apperr.KindExternalFailure, "Converter process failed", err)
	}

	return nil
}
