/*
Package domain contains the core entities and interfaces of the stand router.

The router accepts a (target, amount) pair, resolves target through a
BackendRegistry, and calls the resolved BackendHandle with a fresh
CorrelationID. A handle fronts one or more replicas of a Backend; each
replica holds its own configuration, replaced wholesale through ConfigPort.

	handle, ok := registry.Lookup("MANGO")
	if !ok {
		// unknown targets never reach a backend
	}
	total, err := handle.Invoke(ctx, 3, domain.NewCorrelationID())

Configuration pushes are full replaces. A blob that omits a parameter resets
that parameter to its documented default rather than keeping the prior value:

	handle.ApplyConfig(domain.ConfigBlob{"price": 3}) // price = 3
	handle.ApplyConfig(domain.ConfigBlob{})           // price = default

Replica selection is controlled by ReplicaStrategy:
  - round_robin cycles through replicas in order
  - least_pending picks the replica with the fewest queued calls

The package has no dependencies on transport or storage.
*/
package domain
