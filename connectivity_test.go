package netsched

import (
	"fmt"
	"testing"
	"time"
)

func TestManualObserverNotifiesOnTransition(t *testing.T) {
	obs := NewManualObserver(ConnectivityState{Connected: true, Type: ConnectionWifi})

	var got []ConnectivityState
	unsubscribe := obs.OnChange(func(state ConnectivityState) {
		got = append(got, state)
	})

	obs.SetState(ConnectivityState{Connected: false, Type: ConnectionUnknown})
	obs.SetState(ConnectivityState{Connected: true, Type: ConnectionCellular})

	if len(got) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(got))
	}
	if got[0].Connected || got[1].Type != ConnectionCellular {
		t.Errorf("Notifications out of order: %+v", got)
	}

	unsubscribe()
	obs.SetState(ConnectivityState{Connected: true, Type: ConnectionWifi})
	if len(got) != 2 {
		t.Error("Unsubscribed callback should not fire")
	}
}

func TestManualObserverSameStateIsNoOp(t *testing.T) {
	state := ConnectivityState{Connected: true, Type: ConnectionWifi}
	obs := NewManualObserver(state)

	fired := 0
	obs.OnChange(func(ConnectivityState) { fired++ })

	obs.SetState(state)
	if fired != 0 {
		t.Errorf("Setting the same state should not notify, fired %d times", fired)
	}
	if obs.State() != state {
		t.Errorf("State changed unexpectedly: %+v", obs.State())
	}
}

func TestTelemetryJournalRoundtrip(t *testing.T) {
	store := NewMemoryStore()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := appendTelemetry(store, at, ConnectivityState{Connected: false, Type: ConnectionUnknown}); err != nil {
		t.Fatalf("appendTelemetry: %v", err)
	}
	if err := appendTelemetry(store, at.Add(time.Minute), ConnectivityState{Connected: true, Type: ConnectionWifi}); err != nil {
		t.Fatalf("appendTelemetry: %v", err)
	}

	entries, err := loadTelemetry(store)
	if err != nil {
		t.Fatalf("loadTelemetry: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Connected || !entries[1].Connected {
		t.Errorf("Entries out of order: %+v", entries)
	}
	if entries[1].Type != ConnectionWifi {
		t.Errorf("Expected wifi transition, got %s", entries[1].Type)
	}
}

func TestTelemetryJournalIsBounded(t *testing.T) {
	store := NewMemoryStore()
	at := time.Now()

	for i := 0; i < telemetryJournalLimit+20; i++ {
		state := ConnectivityState{Connected: i%2 == 0, Type: ConnectionWifi}
		if err := appendTelemetry(store, at.Add(time.Duration(i)*time.Second), state); err != nil {
			t.Fatalf("appendTelemetry %d: %v", i, err)
		}
	}

	entries, err := loadTelemetry(store)
	if err != nil {
		t.Fatalf("loadTelemetry: %v", err)
	}
	if len(entries) != telemetryJournalLimit {
		t.Errorf("Journal should be bounded at %d, got %d", telemetryJournalLimit, len(entries))
	}
}

func TestTelemetryDiscardsCorruptJournal(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SetItem(telemetryKey, "{corrupt"); err != nil {
		t.Fatal(err)
	}

	if err := appendTelemetry(store, time.Now(), ConnectivityState{Connected: true, Type: ConnectionWifi}); err != nil {
		t.Fatalf("appendTelemetry over corrupt journal: %v", err)
	}

	entries, err := loadTelemetry(store)
	if err != nil {
		t.Fatalf("loadTelemetry: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Corrupt journal should be restarted, got %d entries", len(entries))
	}
}

func TestTelemetryNilStore(t *testing.T) {
	if err := appendTelemetry(nil, time.Now(), ConnectivityState{}); err != nil {
		t.Errorf("nil store should be a no-op, got %v", err)
	}
	entries, err := loadTelemetry(nil)
	if err != nil || entries != nil {
		t.Errorf("nil store should load nothing, got %v entries and err %v", entries, err)
	}
}

func ExampleManualObserver() {
	obs := NewManualObserver(ConnectivityState{Connected: true, Type: ConnectionWifi})
	obs.OnChange(func(state ConnectivityState) {
		fmt.Printf("connected=%v type=%s\n", state.Connected, state.Type)
	})
	obs.SetState(ConnectivityState{Connected: true, Type: ConnectionCellular})
	// Output: connected=true type=cellular
}
