//go:build !linux

package audioio

import (
	"fmt"
	"log/slog"
	"runtime"
)

func newALSASource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, fmt.Errorf("%w: alsa is not available on %s", ErrDeviceUnavailable, runtime.GOOS)
}

func newALSASink(cfg Config, logger *slog.Logger) (Sink, error) {
	return nil, fmt.Errorf("%w: alsa is not available on %s", ErrDeviceUnavailable, runtime.GOOS)
}
