package stand

import (
	"math"
	"sync/atomic"

	"github.com/mir00r/stand-router/internal/domain"
	apperrors "github.com/mir00r/stand-router/internal/errors"
	"github.com/mir00r/stand-router/pkg/logger"
)

// snapshot is an immutable, version-stamped config. Stands swap whole
// snapshots; a snapshot is never modified after it is published.
type snapshot struct {
	config  PriceConfig
	version uint64
}

// Stand is one replica of a priced backend. It implements domain.Backend.
type Stand struct {
	kind    Kind
	current atomic.Pointer[snapshot]
	logger  *logger.Logger
}

// New creates an active stand holding the kind's defaults at version 0
func New(kind Kind, replica int, log *logger.Logger) *Stand {
	s := &Stand{
		kind:   kind,
		logger: log.StandLogger(kind.Name, replica),
	}
	s.current.Store(&snapshot{config: kind.Defaults()})
	return s
}

// Kind returns the stand's kind
func (s *Stand) Kind() Kind {
	return s.kind
}

// Invoke returns price * amount using a single config snapshot
func (s *Stand) Invoke(amount float64, correlationID domain.CorrelationID) (float64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, apperrors.NewInvalidPayloadError(s.kind.Name, "amount must be finite").
			WithRequestID(correlationID.String())
	}
	if amount < 0 {
		return 0, apperrors.NewInvalidPayloadError(s.kind.Name, "amount must not be negative").
			WithRequestID(correlationID.String())
	}

	snap := s.current.Load()

	s.logger.DispatchLogger(correlationID.String(), s.kind.Name).WithFields(map[string]interface{}{
		"price":          snap.config.Price,
		"config_version": snap.version,
	}).Debug("Computing price")

	return snap.config.Price * amount, nil
}

// ApplyConfig parses blob as a full replacement and publishes it. On error
// the previous config stays active.
func (s *Stand) ApplyConfig(blob domain.ConfigBlob) error {
	cfg, err := ParsePriceConfig(s.kind, blob)
	if err != nil {
		s.logger.WithError(err).Warn("Config rejected")
		return err
	}
	s.Replace(cfg)
	return nil
}

// Replace publishes an already validated config and returns its version
func (s *Stand) Replace(cfg PriceConfig) uint64 {
	for {
		old := s.current.Load()
		next := &snapshot{config: cfg, version: old.version + 1}
		if s.current.CompareAndSwap(old, next) {
			s.logger.WithFields(map[string]interface{}{
				"price":          cfg.Price,
				"config_version": next.version,
			}).Info("Config applied")
			return next.version
		}
	}
}

// Config returns the active config
func (s *Stand) Config() PriceConfig {
	return s.current.Load().config
}

// Version returns how many configs have been applied since startup
func (s *Stand) Version() uint64 {
	return s.current.Load().version
}

// ConfigView returns the active config in blob form
func (s *Stand) ConfigView() domain.ConfigBlob {
	return s.Config().ToBlob()
}
