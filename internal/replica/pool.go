package replica

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mir00r/stand-router/internal/domain"
	apperrors "github.com/mir00r/stand-router/internal/errors"
	"github.com/mir00r/stand-router/pkg/logger"
)

const defaultQueueSize = 64

// Options configures a Pool
type Options struct {
	Name      string
	Replicas  int
	QueueSize int
	Strategy  domain.ReplicaStrategy
}

// Inspectable is implemented by backends that can report their active config
type Inspectable interface {
	ConfigView() domain.ConfigBlob
	Version() uint64
}

// call is one unit of work queued on a replica
type call struct {
	amount        float64
	correlationID domain.CorrelationID
	future        *Future
}

// replica is a single-consumer worker owning one backend instance
type replica struct {
	name    string
	index   int
	backend domain.Backend
	queue   chan *call
	pending int64
	logger  *logger.Logger
}

// Pending returns the number of queued or running calls
func (r *replica) Pending() int64 {
	return atomic.LoadInt64(&r.pending)
}

// loop serves calls in arrival order until the queue is closed
func (r *replica) loop(wg *sync.WaitGroup) {
	defer wg.Done()
	for c := range r.queue {
		res := r.safeInvoke(c)
		atomic.AddInt64(&r.pending, -1)
		c.future.complete(res)
	}
}

// safeInvoke converts a backend panic into a BackendUnavailable result so the
// future is always completed and the worker keeps running
func (r *replica) safeInvoke(c *call) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.DispatchLogger(c.correlationID.String(), r.name).WithField("panic", p).
				Error("Backend panicked")
			res = Result{Err: apperrors.NewBackendUnavailableError(
				r.name,
				fmt.Errorf("replica %d panicked: %v", r.index, p),
			).WithRequestID(c.correlationID.String())}
		}
	}()

	total, err := r.backend.Invoke(c.amount, c.correlationID)
	return Result{Total: total, Err: err}
}

// Pool is a domain.BackendHandle over a fixed set of replicas
type Pool struct {
	name     string
	replicas []*replica
	selector selector
	logger   *logger.Logger

	// mu guards closed against queue sends racing with Close
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	// applyMu serializes config pushes so replicas converge on the last one
	applyMu sync.Mutex
}

// NewPool starts opts.Replicas workers, each owning a backend built by factory
func NewPool(opts Options, factory func(replica int) domain.Backend, log *logger.Logger) (*Pool, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("pool name cannot be empty")
	}
	if opts.Replicas < 1 {
		return nil, fmt.Errorf("pool %s: replicas must be at least 1, got %d", opts.Name, opts.Replicas)
	}
	if factory == nil {
		return nil, fmt.Errorf("pool %s: backend factory cannot be nil", opts.Name)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	sel, err := newSelector(opts.Strategy)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", opts.Name, err)
	}

	p := &Pool{
		name:     opts.Name,
		replicas: make([]*replica, opts.Replicas),
		selector: sel,
		logger:   log.WithField("backend", opts.Name),
	}

	for i := range p.replicas {
		r := &replica{
			name:    opts.Name,
			index:   i,
			backend: factory(i),
			queue:   make(chan *call, opts.QueueSize),
			logger:  log.StandLogger(opts.Name, i),
		}
		p.replicas[i] = r
		p.wg.Add(1)
		go r.loop(&p.wg)
	}

	p.logger.WithFields(map[string]interface{}{
		"replicas":   opts.Replicas,
		"queue_size": opts.QueueSize,
		"strategy":   sel.Name(),
	}).Info("Started backend replicas")

	return p, nil
}

// Name returns the logical backend name
func (p *Pool) Name() string {
	return p.name
}

// Invoke queues the call on one replica and waits for its reply. Context
// expiry while queueing or waiting yields BackendUnavailable; the replica may
// still finish the call later and its result is dropped.
func (p *Pool) Invoke(ctx context.Context, amount float64, correlationID domain.CorrelationID) (float64, error) {
	f, err := p.enqueue(ctx, amount, correlationID)
	if err != nil {
		return 0, err
	}

	res, err := f.Wait(ctx)
	if err != nil {
		return 0, apperrors.NewBackendUnavailableError(p.name, err).WithRequestID(correlationID.String())
	}
	return res.Total, res.Err
}

func (p *Pool) enqueue(ctx context.Context, amount float64, correlationID domain.CorrelationID) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, apperrors.NewBackendUnavailableError(p.name, fmt.Errorf("pool closed")).
			WithRequestID(correlationID.String())
	}

	r := p.selector.Select(p.replicas)
	c := &call{amount: amount, correlationID: correlationID, future: newFuture()}

	atomic.AddInt64(&r.pending, 1)
	select {
	case r.queue <- c:
		return c.future, nil
	case <-ctx.Done():
		atomic.AddInt64(&r.pending, -1)
		return nil, apperrors.NewBackendUnavailableError(p.name, ctx.Err()).
			WithRequestID(correlationID.String())
	}
}

// ApplyConfig pushes blob to every replica. The first replica validates it;
// if it is rejected no replica changes.
func (p *Pool) ApplyConfig(blob domain.ConfigBlob) error {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	if err := p.replicas[0].backend.ApplyConfig(blob); err != nil {
		return err
	}
	for _, r := range p.replicas[1:] {
		if err := r.backend.ApplyConfig(blob); err != nil {
			// Replicas share a kind, so this only happens with a faulty backend.
			p.logger.WithError(err).WithField("replica", r.index).Error("Replica diverged on config push")
			return err
		}
	}

	p.logger.WithField("replicas", len(p.replicas)).Info("Config pushed to all replicas")
	return nil
}

// Describe returns a point in time view of the pool
func (p *Pool) Describe() domain.BackendDescription {
	desc := domain.BackendDescription{
		Name:     p.name,
		Replicas: len(p.replicas),
		Strategy: p.selector.Name(),
		Pending:  make([]int, len(p.replicas)),
	}
	for i, r := range p.replicas {
		desc.Pending[i] = int(r.Pending())
	}
	if in, ok := p.replicas[0].backend.(Inspectable); ok {
		desc.Config = in.ConfigView()
		desc.ConfigVersion = in.Version()
	}
	return desc
}

// Close stops accepting calls, lets replicas drain their queues and waits
// for them to exit
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, r := range p.replicas {
		close(r.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Backend replicas stopped")
}
