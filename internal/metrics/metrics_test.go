package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	// Create a new registry for isolated testing
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	if m == nil {
		t.Fatal("NewMetricsWithRegistry returned nil")
	}

	// Verify metrics are registered
	if m.ChannelsActive == nil {
		t.Error("ChannelsActive metric is nil")
	}
	if m.DatagramsForwarded == nil {
		t.Error("DatagramsForwarded metric is nil")
	}
	if m.SourceChanges == nil {
		t.Error("SourceChanges metric is nil")
	}
}

func TestRecordChannelStartStop(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordChannelStart("ctrl")
	m.RecordChannelStart("rxdsp0")
	m.RecordChannelStart("txdsp0")

	active := testutil.ToFloat64(m.ChannelsActive)
	if active != 3 {
		t.Errorf("ChannelsActive = %v, want 3", active)
	}

	m.RecordChannelStop()

	active = testutil.ToFloat64(m.ChannelsActive)
	if active != 2 {
		t.Errorf("ChannelsActive = %v, want 2", active)
	}

	starts := testutil.ToFloat64(m.ChannelStarts.WithLabelValues("ctrl"))
	if starts != 1 {
		t.Errorf("ChannelStarts[ctrl] = %v, want 1", starts)
	}
}

func TestRecordForward(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordForward("rxdsp0", "rx", 1472)
	m.RecordForward("rxdsp0", "rx", 8000)
	m.RecordForward("rxdsp0", "tx", 64)
	m.RecordForward("ctrl", "tx", 32)

	rxCount := testutil.ToFloat64(m.DatagramsForwarded.WithLabelValues("rxdsp0", "rx"))
	if rxCount != 2 {
		t.Errorf("DatagramsForwarded[rxdsp0,rx] = %v, want 2", rxCount)
	}

	rxBytes := testutil.ToFloat64(m.BytesForwarded.WithLabelValues("rxdsp0", "rx"))
	if rxBytes != 9472 {
		t.Errorf("BytesForwarded[rxdsp0,rx] = %v, want 9472", rxBytes)
	}

	ctrlBytes := testutil.ToFloat64(m.BytesForwarded.WithLabelValues("ctrl", "tx"))
	if ctrlBytes != 32 {
		t.Errorf("BytesForwarded[ctrl,tx] = %v, want 32", ctrlBytes)
	}
}

func TestRecordDrop(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordDrop("rxdsp0", "no_source")
	m.RecordDrop("rxdsp0", "no_source")
	m.RecordDrop("gps", "no_source")

	drops := testutil.ToFloat64(m.DatagramsDropped.WithLabelValues("rxdsp0", "no_source"))
	if drops != 2 {
		t.Errorf("DatagramsDropped[rxdsp0,no_source] = %v, want 2", drops)
	}

	gpsDrops := testutil.ToFloat64(m.DatagramsDropped.WithLabelValues("gps", "no_source"))
	if gpsDrops != 1 {
		t.Errorf("DatagramsDropped[gps,no_source] = %v, want 1", gpsDrops)
	}
}

func TestRecordSendError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordSendError("txdsp0", "tx")
	m.RecordSendError("txdsp0", "tx")
	m.RecordSendError("txdsp0", "rx")

	txErrors := testutil.ToFloat64(m.SendErrors.WithLabelValues("txdsp0", "tx"))
	if txErrors != 2 {
		t.Errorf("SendErrors[txdsp0,tx] = %v, want 2", txErrors)
	}
}

func TestRecordLoopError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordLoopError("ctrl", "rx")

	broken := testutil.ToFloat64(m.ChannelsBroken)
	if broken != 1 {
		t.Errorf("ChannelsBroken = %v, want 1", broken)
	}

	loopErrors := testutil.ToFloat64(m.LoopErrors.WithLabelValues("ctrl", "rx"))
	if loopErrors != 1 {
		t.Errorf("LoopErrors[ctrl,rx] = %v, want 1", loopErrors)
	}
}

func TestRecordSourceChange(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordSourceChange("ctrl")
	m.RecordSourceChange("ctrl")

	changes := testutil.ToFloat64(m.SourceChanges.WithLabelValues("ctrl"))
	if changes != 2 {
		t.Errorf("SourceChanges[ctrl] = %v, want 2", changes)
	}
}

func TestDefaultMetrics(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() should return same instance")
	}

	if m1 == nil {
		t.Error("Default() returned nil")
	}
}
