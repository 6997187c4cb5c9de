package loadtest

import (
	"context"
	"net"
	"testing"
	"time"
)

// waitFor polls cond until it returns true or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestSink_Echo(t *testing.T) {
	sink, err := NewSink(SinkConfig{
		Address:      "127.0.0.1:0",
		Echo:         true,
		PollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	defer sink.Stop()

	addr, err := net.ResolveUDPAddr("udp4", sink.Addr())
	if err != nil {
		t.Fatalf("resolve sink addr: %v", err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		t.Fatalf("dial sink: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Errorf("echo = %q, want ping", buf[:n])
	}

	if sink.Received() != 1 {
		t.Errorf("Received = %d, want 1", sink.Received())
	}
	if sink.Bytes() != 4 {
		t.Errorf("Bytes = %d, want 4", sink.Bytes())
	}
}

func TestSink_CountOnly(t *testing.T) {
	sink, err := NewSink(SinkConfig{
		Address:      "127.0.0.1:0",
		PollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	defer sink.Stop()

	addr, err := net.ResolveUDPAddr("udp4", sink.Addr())
	if err != nil {
		t.Fatalf("resolve sink addr: %v", err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		t.Fatalf("dial sink: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 3; i++ {
		if _, err := conn.Write([]byte("data")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	if !waitFor(t, 2*time.Second, func() bool { return sink.Received() == 3 }) {
		t.Fatalf("Received = %d, want 3", sink.Received())
	}

	// A silent sink must not echo
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 64)
	if _, err := conn.Read(buf); err == nil {
		t.Error("expected no echo from silent sink")
	}
}

func TestSink_StopIdempotent(t *testing.T) {
	sink, err := NewSink(SinkConfig{Address: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}

	sink.Stop()
	sink.Stop()
}

func TestGenerator_RoundTrip(t *testing.T) {
	sink, err := NewSink(SinkConfig{
		Address:      "127.0.0.1:0",
		Echo:         true,
		PollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	defer sink.Stop()

	gen, err := NewGenerator(GeneratorConfig{
		Target:    sink.Addr(),
		Rate:      2000,
		Count:     50,
		Size:      256,
		ReplyWait: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	metrics, err := gen.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if metrics.Sent != 50 {
		t.Errorf("Sent = %d, want 50", metrics.Sent)
	}
	if metrics.Received != 50 {
		t.Errorf("Received = %d, want 50", metrics.Received)
	}
	if metrics.Lost != 0 {
		t.Errorf("Lost = %d, want 0", metrics.Lost)
	}
	if metrics.LossRate != 0 {
		t.Errorf("LossRate = %f, want 0", metrics.LossRate)
	}
	if metrics.BytesSent != 50*256 {
		t.Errorf("BytesSent = %d, want %d", metrics.BytesSent, 50*256)
	}
	if metrics.Duration <= 0 {
		t.Error("expected positive duration")
	}
	t.Logf("Loadtest metrics: sent=%d, received=%d, lost=%d, throughput=%.2f MB/s",
		metrics.Sent, metrics.Received, metrics.Lost, metrics.Throughput)
}

func TestGenerator_LossAccounting(t *testing.T) {
	// A silent sink swallows everything, so every datagram counts as lost
	sink, err := NewSink(SinkConfig{
		Address:      "127.0.0.1:0",
		PollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	defer sink.Stop()

	gen, err := NewGenerator(GeneratorConfig{
		Target:    sink.Addr(),
		Rate:      2000,
		Count:     20,
		Size:      64,
		ReplyWait: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	metrics, err := gen.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if metrics.Sent != 20 {
		t.Errorf("Sent = %d, want 20", metrics.Sent)
	}
	if metrics.Received != 0 {
		t.Errorf("Received = %d, want 0", metrics.Received)
	}
	if metrics.Lost != 20 {
		t.Errorf("Lost = %d, want 20", metrics.Lost)
	}
	if metrics.LossRate != 1.0 {
		t.Errorf("LossRate = %f, want 1.0", metrics.LossRate)
	}
}

func TestGenerator_DurationCap(t *testing.T) {
	sink, err := NewSink(SinkConfig{
		Address:      "127.0.0.1:0",
		Echo:         true,
		PollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	defer sink.Stop()

	gen, err := NewGenerator(GeneratorConfig{
		Target:    sink.Addr(),
		Rate:      100,
		Count:     0, // unbounded, duration ends the run
		Size:      64,
		Duration:  150 * time.Millisecond,
		ReplyWait: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	metrics, err := gen.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if metrics.Sent == 0 {
		t.Error("expected some datagrams sent before the duration cap")
	}
	if metrics.Sent > 30 {
		t.Errorf("Sent = %d, expected the duration cap to hold it near 15", metrics.Sent)
	}
}

func TestNewGenerator_Validation(t *testing.T) {
	if _, err := NewGenerator(GeneratorConfig{}); err == nil {
		t.Error("expected error for missing target")
	}

	if _, err := NewGenerator(GeneratorConfig{Target: "127.0.0.1:49156", Size: 4}); err == nil {
		t.Error("expected error for size below the sequence header")
	}

	if _, err := NewGenerator(GeneratorConfig{Target: "127.0.0.1:49156", Count: -1}); err == nil {
		t.Error("expected error for negative count")
	}
}

func BenchmarkGeneratorLoopback(b *testing.B) {
	sink, err := NewSink(SinkConfig{
		Address: "127.0.0.1:0",
		Echo:    true,
	})
	if err != nil {
		b.Fatalf("failed to create sink: %v", err)
	}
	defer sink.Stop()

	for i := 0; i < b.N; i++ {
		gen, err := NewGenerator(GeneratorConfig{
			Target:    sink.Addr(),
			Rate:      10000,
			Count:     100,
			Size:      1024,
			ReplyWait: 50 * time.Millisecond,
		})
		if err != nil {
			b.Fatalf("failed to create generator: %v", err)
		}

		metrics, err := gen.Run(context.Background())
		if err != nil {
			b.Fatalf("Run failed: %v", err)
		}
		b.ReportMetric(metrics.Throughput, "MB/s")
	}
}
