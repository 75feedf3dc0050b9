/*
Package service wires configured backends into running replica pools and keeps
their user config current.

Starting backends:
BuildBackends starts one replica pool of stands per configured backend and
seals the registry. Stands start on their defaults; the configured user_config
is pushed afterwards, the same way a deployment pushes it after startup.

	backends, err := service.BuildBackends(cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close()

	if err := service.PushUserConfigs(cfg, backends.Registry, log); err != nil {
		return err
	}

Reloading:
ConfigReloadService polls the config file and pushes every user_config that
changed since the last apply. Backend names and replica counts are fixed for
the life of the process; changes to them are logged and ignored.

	crs := service.NewConfigReloadService(cfg, backends.Registry, path, log)
	if err := crs.StartWatcher(); err != nil {
		return err
	}
	defer crs.StopWatcher()

A push a stand rejects leaves that backend on its previous config. Other
backends in the same reload are still updated, and the returned error joins
every rejection.

Metrics:
Metrics counts dispatches, errors and unknown targets and keeps a latency
distribution per backend. It satisfies domain.Metrics and is safe for
concurrent use.
*/
package service
