package router

import (
	"context"
	"errors"
	"time"

	"github.com/mir00r/stand-router/internal/domain"
	apperrors "github.com/mir00r/stand-router/internal/errors"
	"github.com/mir00r/stand-router/pkg/logger"
)

// DefaultDispatchTimeout bounds how long a dispatch waits for a backend reply
const DefaultDispatchTimeout = 5 * time.Second

// unknownTargetCounter is implemented by metrics that track rejected targets
type unknownTargetCounter interface {
	IncrementUnknownTargets()
}

// Router resolves a target through the registry, calls the backend with a
// fresh correlation ID and returns the aggregated response. It holds no
// per-request state and is safe for concurrent use.
type Router struct {
	registry domain.BackendRegistry
	timeout  time.Duration
	metrics  domain.Metrics
	logger   *logger.Logger
}

// Options configures a Router
type Options struct {
	Timeout time.Duration
}

// New creates a router over registry. metrics may be nil.
func New(registry domain.BackendRegistry, opts Options, metrics domain.Metrics, log *logger.Logger) *Router {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultDispatchTimeout
	}
	return &Router{
		registry: registry,
		timeout:  opts.Timeout,
		metrics:  metrics,
		logger:   log.RouterLogger(),
	}
}

// Timeout returns the dispatch wait bound
func (r *Router) Timeout() time.Duration {
	return r.timeout
}

// DispatchRequest is Dispatch for a decoded request
func (r *Router) DispatchRequest(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResponse, error) {
	return r.Dispatch(ctx, req.Target, req.Amount)
}

// Dispatch sends amount to the backend registered as target.
//
// Unknown targets fail with UnknownTarget before a correlation ID is minted.
// Invalid amounts fail with InvalidPayload. Any other backend failure, and
// any reply slower than the timeout, fails with BackendUnavailable.
func (r *Router) Dispatch(ctx context.Context, target string, amount float64) (*domain.DispatchResponse, error) {
	if target == "" {
		return nil, apperrors.NewInvalidRequestError("target cannot be empty")
	}

	handle, ok := r.registry.Lookup(target)
	if !ok {
		if c, ok := r.metrics.(unknownTargetCounter); ok {
			c.IncrementUnknownTargets()
		}
		r.logger.WithFields(map[string]interface{}{
			"target": target,
			"amount": amount,
		}).Warn("Unknown target")
		return nil, apperrors.NewUnknownTargetError(target)
	}

	correlationID := domain.NewCorrelationID()
	log := r.logger.DispatchLogger(correlationID.String(), target)

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	if r.metrics != nil {
		r.metrics.IncrementRequests(target)
	}

	total, err := handle.Invoke(callCtx, amount, correlationID)

	if r.metrics != nil {
		r.metrics.RecordLatency(target, time.Since(start))
	}

	if err != nil {
		if r.metrics != nil {
			r.metrics.IncrementErrors(target)
		}
		err = classify(target, correlationID, err)
		log.WithError(err).WithField("amount", amount).Warn("Dispatch failed")
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"amount":      amount,
		"total":       total,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Infof("[%s]: price for %v x %s: %v", correlationID, amount, target, total)

	return &domain.DispatchResponse{Total: total, RequestID: correlationID}, nil
}

// classify keeps InvalidPayload and BackendUnavailable as they are and turns
// everything else into BackendUnavailable, tagged with the correlation ID
func classify(target string, correlationID domain.CorrelationID, err error) error {
	var dErr *apperrors.DispatchError
	if errors.As(err, &dErr) {
		switch dErr.Code {
		case apperrors.ErrCodeInvalidPayload, apperrors.ErrCodeBackendUnavailable:
			if dErr.RequestID == "" {
				dErr.RequestID = correlationID.String()
			}
			return dErr
		}
	}
	return apperrors.NewBackendUnavailableError(target, err).WithRequestID(correlationID.String())
}
