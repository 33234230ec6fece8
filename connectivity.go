package netsched

import (
	"encoding/json"
	"sync"
	"time"
)

// ManualObserver is a ConnectivityObserver driven by explicit SetState calls.
// The embedding host feeds it platform connectivity events; tests drive it
// directly.
type ManualObserver struct {
	mu    sync.Mutex
	state ConnectivityState
	subs  map[int]func(ConnectivityState)
	next  int
}

// NewManualObserver starts in the given state.
func NewManualObserver(state ConnectivityState) *ManualObserver {
	return &ManualObserver{state: state, subs: make(map[int]func(ConnectivityState))}
}

// State returns the current connectivity snapshot.
func (o *ManualObserver) State() ConnectivityState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SetState records a transition and notifies subscribers. Setting the same
// state twice is a no-op.
func (o *ManualObserver) SetState(state ConnectivityState) {
	o.mu.Lock()
	if o.state == state {
		o.mu.Unlock()
		return
	}
	o.state = state
	fns := make([]func(ConnectivityState), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// OnChange registers fn for transition notifications.
func (o *ManualObserver) OnChange(fn func(ConnectivityState)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.next
	o.next++
	o.subs[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

// TelemetryEntry is one recorded connectivity transition.
type TelemetryEntry struct {
	At        time.Time      `json:"at"`
	Connected bool           `json:"connected"`
	Type      ConnectionType `json:"type"`
}

const telemetryKey = "netsched/telemetry"

// telemetryJournalLimit bounds the persisted transition history.
const telemetryJournalLimit = 100

// appendTelemetry records a transition to the durable store, keeping the
// journal bounded. Storage failures are logged by the caller, never fatal.
func appendTelemetry(store Store, at time.Time, state ConnectivityState) error {
	if store == nil {
		return nil
	}
	var entries []TelemetryEntry
	if raw, ok, err := store.GetItem(telemetryKey); err != nil {
		return err
	} else if ok {
		// A corrupt journal is discarded rather than poisoning dispatch.
		_ = json.Unmarshal([]byte(raw), &entries)
	}
	entries = append(entries, TelemetryEntry{At: at, Connected: state.Connected, Type: state.Type})
	if len(entries) > telemetryJournalLimit {
		entries = entries[len(entries)-telemetryJournalLimit:]
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return store.SetItem(telemetryKey, string(raw))
}

// loadTelemetry returns the persisted transition journal.
func loadTelemetry(store Store) ([]TelemetryEntry, error) {
	if store == nil {
		return nil, nil
	}
	raw, ok, err := store.GetItem(telemetryKey)
	if err != nil || !ok {
		return nil, err
	}
	var entries []TelemetryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
