package stats

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPrecisionChange(t *testing.T) {
	stat := DefaultStatsReceiver().(*defaultStatsReceiver)
	if stat.precision != time.Nanosecond {
		t.Fatal("Default precision should be nanos.")
	}

	statp := stat.Precision(time.Millisecond).(*defaultStatsReceiver)
	if stat.precision != time.Nanosecond {
		t.Fatal("Default precision should still nanos.")
	}
	if statp.precision != time.Millisecond {
		t.Fatal("New stat precision should be millis.")
	}
}

func TestScopeChange(t *testing.T) {
	stat := DefaultStatsReceiver().(*defaultStatsReceiver)
	if len(stat.scope) != 0 {
		t.Fatal("Default scope should be empty.")
	}

	statp := stat.Scope("a/b", "c").(*defaultStatsReceiver)
	if len(stat.scope) != 0 {
		t.Fatal("Default scope should still empty.")
	}
	if len(statp.scope) != 2 || statp.scope[0] != "a_SLASH_b" || statp.scope[1] != "c" {
		t.Fatal("Invalid scope value: ", statp.scope)
	}
	if statp.scopedName("d") != "a_SLASH_b/c/d" {
		t.Fatal("Invalid scope name: " + statp.scopedName("d"))
	}
}

func TestSameInstrumentReturned(t *testing.T) {
	stat := DefaultStatsReceiver().Scope("sched")
	stat.Counter(SchedSubmittedCounter).Inc(1)
	stat.Counter(SchedSubmittedCounter).Inc(2)
	if c := stat.Counter(SchedSubmittedCounter).Count(); c != 3 {
		t.Fatalf("expected 3, got %d", c)
	}
}

func TestRender(t *testing.T) {
	now := time.Unix(0, 0)
	Now = func() time.Time { return now }
	defer func() { Now = time.Now }()

	stat := DefaultStatsReceiver().Precision(time.Millisecond)
	stat.Counter("counter").Inc(1)
	stat.Gauge("gauge").Update(2)
	l := stat.Latency("latency_ms").Time()
	now = now.Add(4 * time.Millisecond)
	l.Stop()
	stat.Latency("latency_ms").Record(6 * time.Millisecond)

	var data map[string]interface{}
	if err := json.Unmarshal(stat.Render(false), &data); err != nil {
		t.Fatal(err)
	}
	if data["counter"] != float64(1) {
		t.Fatalf("counter: %v", data["counter"])
	}
	if data["gauge"] != float64(2) {
		t.Fatalf("gauge: %v", data["gauge"])
	}
	if data["latency_ms.count"] != float64(2) {
		t.Fatalf("latency count: %v", data["latency_ms.count"])
	}
	if data["latency_ms.avg"] != float64(5) {
		t.Fatalf("latency avg: %v", data["latency_ms.avg"])
	}
	if data["latency_ms.max"] != float64(6) {
		t.Fatalf("latency max: %v", data["latency_ms.max"])
	}
}

func TestNilReceiver(t *testing.T) {
	stat := NilStatsReceiver().Scope("x")
	stat.Counter("c").Inc(5)
	if stat.Counter("c").Count() != 0 {
		t.Fatal("nil counter should not count")
	}
	stat.Latency("l").Time().Stop()
	if string(stat.Render(true)) != "{}" {
		t.Fatal("nil receiver should render empty object")
	}
}
