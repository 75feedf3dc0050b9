package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CorrelationID ties a dispatch to its backend call and its response.
// It carries no ordering and is never reused.
type CorrelationID string

// NewCorrelationID returns a fresh correlation ID
func NewCorrelationID() CorrelationID {
	return CorrelationID("req_" + uuid.NewString())
}

// String returns the string representation of CorrelationID
func (c CorrelationID) String() string {
	return string(c)
}

// ConfigBlob is an operator supplied set of named backend parameters, as
// decoded from JSON or YAML
type ConfigBlob map[string]interface{}

// DispatchRequest is the router input decoded by a request driver
type DispatchRequest struct {
	Target string  `json:"target"`
	Amount float64 `json:"amount"`
}

// DispatchResponse is the aggregated result of a successful dispatch
type DispatchResponse struct {
	Total     float64       `json:"total"`
	RequestID CorrelationID `json:"request_id"`
}

// Backend computes a result for one unit of work using its current config
type Backend interface {
	// Invoke computes the result for amount under the active config
	Invoke(amount float64, correlationID CorrelationID) (float64, error)
	ConfigPort
}

// ConfigPort receives new configuration for a running backend. Each call is
// a full replace: parameters missing from blob take their defaults.
type ConfigPort interface {
	ApplyConfig(blob ConfigBlob) error
}

// BackendHandle is the router's reference to a named backend. It may front
// several replicas; the router does not own its lifecycle.
type BackendHandle interface {
	ConfigPort
	// Name returns the logical name the handle is registered under
	Name() string
	// Invoke sends the work to a replica and waits for the reply or ctx
	Invoke(ctx context.Context, amount float64, correlationID CorrelationID) (float64, error)
	// Describe returns a point in time view of the handle
	Describe() BackendDescription
}

// BackendDescription is a read-only view of a handle used by admin surfaces
type BackendDescription struct {
	Name          string                 `json:"name"`
	Replicas      int                    `json:"replicas"`
	Strategy      string                 `json:"strategy"`
	Pending       []int                  `json:"pending"`
	Config        map[string]interface{} `json:"config"`
	ConfigVersion uint64                 `json:"config_version"`
}

// BackendRegistry resolves logical names to handles
type BackendRegistry interface {
	// Lookup returns the handle registered under name
	Lookup(name string) (BackendHandle, bool)
	// Names returns the registered names in sorted order
	Names() []string
}

// ReplicaStrategy selects which replica of a handle receives a call
type ReplicaStrategy string

const (
	// RoundRobinStrategy cycles through replicas in order
	RoundRobinStrategy ReplicaStrategy = "round_robin"
	// LeastPendingStrategy picks the replica with the shortest queue
	LeastPendingStrategy ReplicaStrategy = "least_pending"
)

// Metrics defines the interface for collecting and reporting dispatch metrics
type Metrics interface {
	// IncrementRequests increments the request count for a backend
	IncrementRequests(backend string)
	// IncrementErrors increments the error count for a backend
	IncrementErrors(backend string)
	// RecordLatency records dispatch latency for a backend
	RecordLatency(backend string, duration time.Duration)
	// GetStats returns current statistics
	GetStats() map[string]interface{}
	// GetBackendStats returns statistics for a specific backend
	GetBackendStats(backend string) map[string]interface{}
}
