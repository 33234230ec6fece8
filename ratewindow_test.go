package netsched

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestRateWindowSlides(t *testing.T) {
	mock := clock.NewMock()
	w := newRateWindow(mock, time.Minute)

	for i := 0; i < 5; i++ {
		w.Record()
	}
	if w.Count() != 5 {
		t.Errorf("Expected count 5, got %d", w.Count())
	}

	mock.Add(30 * time.Second)
	w.Record()
	if w.Count() != 6 {
		t.Errorf("Expected count 6, got %d", w.Count())
	}

	// The first five records fall out of the window after a minute.
	mock.Add(31 * time.Second)
	if w.Count() != 1 {
		t.Errorf("Expected count 1 after sliding, got %d", w.Count())
	}

	mock.Add(time.Minute)
	if w.Count() != 0 {
		t.Errorf("Expected empty window, got %d", w.Count())
	}
}

func TestAdjustedRateLimit(t *testing.T) {
	tests := []struct {
		name  string
		state ConnectivityState
		want  int
	}{
		{"wifi", ConnectivityState{Connected: true, Type: ConnectionWifi}, 60},
		{"4g", ConnectivityState{Connected: true, Type: Connection4G}, 45},
		{"cellular", ConnectivityState{Connected: true, Type: ConnectionCellular}, 45},
		{"3g", ConnectivityState{Connected: true, Type: Connection3G}, 30},
		{"2g", ConnectivityState{Connected: true, Type: Connection2G}, 15},
		{"unknown", ConnectivityState{Connected: true, Type: ConnectionUnknown}, 30},
		{"disconnected", ConnectivityState{Connected: false, Type: ConnectionWifi}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adjustedRateLimit(60, tt.state); got != tt.want {
				t.Errorf("adjustedRateLimit(60, %s) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestOptimalBatchSizeDecreasesWithQuality(t *testing.T) {
	connected := func(ct ConnectionType) ConnectivityState {
		return ConnectivityState{Connected: true, Type: ct}
	}

	wifi := optimalBatchSize(5, connected(ConnectionWifi))
	fourG := optimalBatchSize(5, connected(Connection4G))
	threeG := optimalBatchSize(5, connected(Connection3G))
	twoG := optimalBatchSize(5, connected(Connection2G))

	if wifi != 5 {
		t.Errorf("wifi batch size = %d, want the full maximum 5", wifi)
	}
	if !(wifi > fourG && fourG > threeG && threeG > twoG) {
		t.Errorf("Batch size should strictly decrease wifi→4g→3g→2g, got %d > %d > %d > %d", wifi, fourG, threeG, twoG)
	}
	if twoG != 1 {
		t.Errorf("2g batch size = %d, want 1", twoG)
	}

	if got := optimalBatchSize(5, connected(ConnectionUnknown)); got != 2 {
		t.Errorf("unknown batch size = %d, want 50%% of max", got)
	}
	if got := optimalBatchSize(1, connected(Connection3G)); got != 1 {
		t.Errorf("Batch size should never fall below 1, got %d", got)
	}
}
