package obs

import "testing"

func TestMockMetrics_RecordsCountsAndHists(t *testing.T) {
	m := NewMockMetrics()
	m.IncCounter("rag_requests_total", map[string]string{"mode": "rag"})
	m.IncCounter("rag_requests_total", map[string]string{"mode": "rag"})
	m.ObserveHistogram("rag_step_duration_ms", 12, map[string]string{"step": "retrieve"})
	m.ObserveHistogram("rag_step_duration_ms", 34, map[string]string{"step": "synthesize"})
	if m.Counters["rag_requests_total"] != 2 {
		t.Fatalf("expected 2 requests, got %d", m.Counters["rag_requests_total"])
	}
	if len(m.Hists["rag_step_duration_ms"]) != 2 {
		t.Fatalf("expected 2 histogram records, got %d", len(m.Hists["rag_step_duration_ms"]))
	}
}

func TestMockMetrics_SatisfiesMetrics(t *testing.T) {
	var _ Metrics = NewMockMetrics()
	var _ Metrics = NewOtelMetrics("test")
}
