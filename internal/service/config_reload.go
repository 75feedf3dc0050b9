package service

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/mir00r/stand-router/internal/config"
	"github.com/mir00r/stand-router/internal/domain"
	apperrors "github.com/mir00r/stand-router/internal/errors"
	"github.com/mir00r/stand-router/pkg/logger"
)

// ConfigReloadService pushes user_config changes from the config file into
// running backends. Topology (backend names, replica counts) is fixed at
// startup; changes to it are logged and ignored.
type ConfigReloadService struct {
	config         *config.Config
	registry       domain.BackendRegistry
	configFilePath string
	interval       time.Duration
	logger         *logger.Logger

	mutex       sync.RWMutex
	watcherStop chan struct{}
	stopOnce    sync.Once
	lastModTime time.Time

	reloads      int64
	failures     int64
	lastReloaded time.Time
	lastError    string
}

// NewConfigReloadService creates a new configuration reload service
func NewConfigReloadService(
	cfg *config.Config,
	registry domain.BackendRegistry,
	configFilePath string,
	log *logger.Logger,
) *ConfigReloadService {
	interval := cfg.Reload.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ConfigReloadService{
		config:         cfg,
		registry:       registry,
		configFilePath: configFilePath,
		interval:       interval,
		logger:         log.ConfigLogger(),
		watcherStop:    make(chan struct{}),
	}
}

// PushUserConfigs applies every backend's user_config that is set in cfg.
// It is used once at startup, before the router takes traffic.
func PushUserConfigs(cfg *config.Config, registry domain.BackendRegistry, log *logger.Logger) error {
	var errs []error
	for _, backend := range cfg.Backends {
		if backend.UserConfig == nil {
			continue
		}
		handle, ok := registry.Lookup(backend.Name)
		if !ok {
			errs = append(errs, apperrors.NewUnknownTargetError(backend.Name))
			continue
		}
		if err := handle.ApplyConfig(backend.Blob()); err != nil {
			errs = append(errs, err)
			continue
		}
		log.WithFields(map[string]interface{}{
			"backend":     backend.Name,
			"user_config": backend.UserConfig,
		}).Info("Applied user config")
	}
	return errors.Join(errs...)
}

// StartWatcher starts polling the configuration file for changes
func (crs *ConfigReloadService) StartWatcher() error {
	info, err := os.Stat(crs.configFilePath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	crs.mutex.Lock()
	crs.lastModTime = info.ModTime()
	crs.mutex.Unlock()

	go crs.watchConfigFile()

	crs.logger.WithFields(map[string]interface{}{
		"config_file": crs.configFilePath,
		"interval":    crs.interval.String(),
	}).Info("Started configuration file watcher")

	return nil
}

// StopWatcher stops the configuration file watcher. It is safe to call more than once.
func (crs *ConfigReloadService) StopWatcher() {
	crs.stopOnce.Do(func() {
		close(crs.watcherStop)
		crs.logger.Info("Stopped configuration file watcher")
	})
}

func (crs *ConfigReloadService) watchConfigFile() {
	ticker := time.NewTicker(crs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := crs.checkConfigFileModification(); err != nil {
				crs.logger.WithError(err).Error("Failed to reload configuration file")
			}
		case <-crs.watcherStop:
			return
		}
	}
}

// checkConfigFileModification reloads when the file's mod time moved
func (crs *ConfigReloadService) checkConfigFileModification() error {
	info, err := os.Stat(crs.configFilePath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	crs.mutex.RLock()
	unchanged := !info.ModTime().After(crs.lastModTime)
	crs.mutex.RUnlock()
	if unchanged {
		return nil
	}

	crs.mutex.Lock()
	crs.lastModTime = info.ModTime()
	crs.mutex.Unlock()

	crs.logger.Info("Configuration file changed, reloading...")
	return crs.ReloadFromFile()
}

// ReloadFromFile reads, validates and applies the configuration file
func (crs *ConfigReloadService) ReloadFromFile() error {
	newConfig, err := config.LoadFromFile(crs.configFilePath)
	if err != nil {
		crs.recordFailure(err)
		return apperrors.WrapError(err, apperrors.ErrCodeConfigLoad, "config_reload", "configuration reload failed")
	}
	return crs.ReloadConfig(newConfig)
}

// ReloadFromAPI applies a YAML document supplied by an operator
func (crs *ConfigReloadService) ReloadFromAPI(data []byte) error {
	newConfig, err := config.Parse(data)
	if err != nil {
		crs.recordFailure(err)
		return apperrors.WrapError(err, apperrors.ErrCodeConfigLoad, "config_reload", "configuration reload failed")
	}
	return crs.ReloadConfig(newConfig)
}

// ReloadConfig pushes every user_config that differs from the last applied
// one. A rejected push leaves that backend, and the stored config for it,
// unchanged; the other backends are still updated.
func (crs *ConfigReloadService) ReloadConfig(newConfig *config.Config) error {
	crs.mutex.Lock()
	defer crs.mutex.Unlock()

	crs.logTopologyChanges(newConfig)

	applied := *crs.config
	applied.Backends = make([]config.BackendConfig, len(crs.config.Backends))
	copy(applied.Backends, crs.config.Backends)

	var errs []error
	pushed := 0
	for i, current := range applied.Backends {
		next, ok := newConfig.Backend(current.Name)
		if !ok {
			continue
		}
		if reflect.DeepEqual(current.UserConfig, next.UserConfig) {
			continue
		}

		handle, ok := crs.registry.Lookup(current.Name)
		if !ok {
			continue
		}
		if err := handle.ApplyConfig(next.Blob()); err != nil {
			crs.logger.WithError(err).WithField("backend", current.Name).Warn("User config rejected")
			errs = append(errs, err)
			continue
		}

		applied.Backends[i].UserConfig = next.UserConfig
		pushed++
		crs.logger.WithFields(map[string]interface{}{
			"backend":     current.Name,
			"user_config": next.UserConfig,
		}).Info("Reloaded user config")
	}

	crs.config = &applied
	crs.reloads++
	crs.lastReloaded = time.Now()

	if err := errors.Join(errs...); err != nil {
		crs.failures++
		crs.lastError = err.Error()
		return err
	}

	crs.lastError = ""
	crs.logger.WithField("pushed", pushed).Info("Configuration reloaded successfully")
	return nil
}

// logTopologyChanges reports differences that a reload cannot apply.
// Callers hold mutex.
func (crs *ConfigReloadService) logTopologyChanges(newConfig *config.Config) {
	for _, next := range newConfig.Backends {
		current, ok := crs.config.Backend(next.Name)
		if !ok {
			crs.logger.WithField("backend", next.Name).Warn("Ignoring new backend, restart required")
			continue
		}
		if current.Replicas != next.Replicas || current.DefaultPrice != next.DefaultPrice {
			crs.logger.WithFields(map[string]interface{}{
				"backend":      next.Name,
				"old_replicas": current.Replicas,
				"new_replicas": next.Replicas,
			}).Warn("Ignoring backend topology change, restart required")
		}
	}
	for _, current := range crs.config.Backends {
		if _, ok := newConfig.Backend(current.Name); !ok {
			crs.logger.WithField("backend", current.Name).Warn("Ignoring removed backend, restart required")
		}
	}
}

func (crs *ConfigReloadService) recordFailure(err error) {
	crs.mutex.Lock()
	defer crs.mutex.Unlock()
	crs.failures++
	crs.lastError = err.Error()
	crs.logger.WithError(err).Error("Configuration reload failed")
}

// GetCurrentConfig returns the last applied configuration
func (crs *ConfigReloadService) GetCurrentConfig() *config.Config {
	crs.mutex.RLock()
	defer crs.mutex.RUnlock()
	return crs.config
}

// GetReloadStats returns reload statistics
func (crs *ConfigReloadService) GetReloadStats() map[string]interface{} {
	crs.mutex.RLock()
	defer crs.mutex.RUnlock()

	return map[string]interface{}{
		"config_file":   crs.configFilePath,
		"interval":      crs.interval.String(),
		"reloads":       crs.reloads,
		"failures":      crs.failures,
		"last_reloaded": crs.lastReloaded,
		"last_modified": crs.lastModTime,
		"last_error":    crs.lastError,
	}
}
