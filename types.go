package netsched

import (
	"context"
	"time"
)

// Priority classifies a request into one of five tiers governing admission
// precedence, concurrency ceiling and advisory timeout. Higher values take
// precedence; the zero value is PriorityNormal so an unset RequestOptions
// schedules at NORMAL.
type Priority int

const (
	PriorityBackground Priority = -2
	PriorityLow        Priority = -1
	PriorityNormal     Priority = 0
	PriorityHigh       Priority = 1
	PriorityCritical   Priority = 2
)

// Tiers lists all priority tiers in ascending order. Useful for iterating
// over per-tier state.
var Tiers = []Priority{PriorityBackground, PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}

func (p Priority) String() string {
	switch p {
	case PriorityBackground:
		return "background"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ConnectionType describes the kind of link currently available.
type ConnectionType string

const (
	ConnectionWifi     ConnectionType = "wifi"
	Connection4G       ConnectionType = "4g"
	ConnectionCellular ConnectionType = "cellular"
	Connection3G       ConnectionType = "3g"
	Connection2G       ConnectionType = "2g"
	ConnectionUnknown  ConnectionType = "unknown"
)

// ConnectivityState is a snapshot of the current connection.
type ConnectivityState struct {
	Connected bool
	Type      ConnectionType
}

// ConnectivityObserver reports connection presence/type and change
// notifications. Implementations wrap whatever platform facility detects
// connectivity; ManualObserver is provided for tests and embedding hosts.
type ConnectivityObserver interface {
	// State returns the current connectivity snapshot.
	State() ConnectivityState
	// OnChange registers fn to be invoked on every transition. The returned
	// function unregisters it.
	OnChange(fn func(ConnectivityState)) (unsubscribe func())
}

// TransportRequest is the single-call contract handed to the Transport.
type TransportRequest struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string
	Timeout time.Duration
}

// Response is the settled value of a network call.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

// Transport executes one network call and returns a response or an error.
// It is the wire boundary of this layer; serialization, auth and actual
// sockets live behind it.
type Transport interface {
	Do(ctx context.Context, req *TransportRequest) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *TransportRequest) (*Response, error)

func (f TransportFunc) Do(ctx context.Context, req *TransportRequest) (*Response, error) {
	return f(ctx, req)
}

// Store is the durable key-value boundary used for access patterns, prefetch
// records and network telemetry. Values are opaque string blobs.
type Store interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
}

// IdleScheduler is an optional host hook for opportunistic background
// processing. When configured, the prefetcher routes its opportunistic
// scoring cycles through it instead of running them inline.
type IdleScheduler interface {
	Schedule(task func(), priority Priority)
}

// RequestOptions carries per-request overrides supplied by callers.
type RequestOptions struct {
	Headers map[string]string
	// Priority selects the admission tier. The zero value is PriorityNormal.
	Priority Priority
	// Timeout overrides the tier timeout handed to the transport. Zero means
	// use the tier default.
	Timeout time.Duration
	// Coalesce overrides the scheduler-wide coalescing default when non-nil.
	Coalesce *bool
}

// Request is a queued outbound call. It is created on enqueue and destroyed
// on settlement or cancellation; every caller coalesced onto it shares its
// result.
type Request struct {
	ID         string
	Method     string
	URL        string
	Body       []byte
	Options    RequestOptions
	Priority   Priority
	EnqueuedAt time.Time

	key    string
	seq    uint64
	result *Result
}

// QueueStats exposes admission scheduler diagnostics.
type QueueStats struct {
	ActiveByTier    map[Priority]int
	PendingBatch    int
	OldestActiveAge time.Duration
	TotalAdmitted   uint64
	TotalDenied     uint64
	TotalTimedOut   uint64
}
