package audioio

import (
	"fmt"
	"log/slog"
	"runtime"
)

// NewSource opens a capture source for cfg. BackendAuto (or empty) picks
// the platform default.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	backend, logger, err := resolve(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"device_rate", cfg.DeviceRate(),
		"frame_size", cfg.FrameSize,
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendALSA:
		return newALSASource(cfg, logger)
	}
	return nil, fmt.Errorf("unsupported backend: %s", backend)
}

// NewSink opens a playback sink for cfg. BackendAuto (or empty) picks the
// platform default.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	backend, logger, err := resolve(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("creating audio sink",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"device_rate", cfg.DeviceRate(),
	)

	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendALSA:
		return newALSASink(cfg, logger)
	}
	return nil, fmt.Errorf("unsupported backend: %s", backend)
}

func resolve(cfg Config, logger *slog.Logger) (Backend, *slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return "", nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	backend := cfg.Backend
	if backend == BackendAuto || backend == "" {
		backend = defaultBackend()
	}
	return backend, logger, nil
}

// defaultBackend is ALSA on Linux; elsewhere only the mock is built in.
func defaultBackend() Backend {
	if runtime.GOOS == "linux" {
		return BackendALSA
	}
	return BackendMock
}

// AvailableBackends lists the backends usable on this platform.
func AvailableBackends() []Backend {
	if runtime.GOOS == "linux" {
		return []Backend{BackendMock, BackendALSA}
	}
	return []Backend{BackendMock}
}
