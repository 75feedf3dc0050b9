package service

import (
	"fmt"

	"github.com/mir00r/stand-router/internal/config"
	"github.com/mir00r/stand-router/internal/domain"
	"github.com/mir00r/stand-router/internal/registry"
	"github.com/mir00r/stand-router/internal/replica"
	"github.com/mir00r/stand-router/internal/stand"
	"github.com/mir00r/stand-router/pkg/logger"
)

// Backends is the started topology: a sealed registry plus the pools behind it
type Backends struct {
	Registry *registry.Registry
	pools    []*replica.Pool
}

// BuildBackends starts one replica pool of stands per configured backend and
// seals the registry. Stands start on their defaults; user_config is pushed
// separately with PushUserConfigs.
func BuildBackends(cfg *config.Config, log *logger.Logger) (*Backends, error) {
	b := &Backends{Registry: registry.New()}

	handles := make([]domain.BackendHandle, 0, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		kind := bc.Kind()
		pool, err := replica.NewPool(replica.Options{
			Name:      bc.Name,
			Replicas:  bc.Replicas,
			QueueSize: cfg.Router.QueueSize,
			Strategy:  domain.ReplicaStrategy(cfg.Router.Strategy),
		}, func(i int) domain.Backend {
			return stand.New(kind, i, log)
		}, log)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to start backend %s: %w", bc.Name, err)
		}
		b.pools = append(b.pools, pool)
		handles = append(handles, pool)

		log.WithFields(map[string]interface{}{
			"backend":       bc.Name,
			"replicas":      bc.Replicas,
			"default_price": bc.DefaultPrice,
		}).Info("Started backend")
	}

	if err := b.Registry.RegisterAll(handles); err != nil {
		b.Close()
		return nil, err
	}
	b.Registry.Seal()

	return b, nil
}

// Close stops every replica worker, waiting for in-flight calls
func (b *Backends) Close() {
	for _, p := range b.pools {
		p.Close()
	}
}
