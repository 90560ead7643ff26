package metrics

import (
	"testing"
	"time"
)

func TestExporterRegistersAndRecords(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	exporter.RecordTurn("answer", 120*time.Millisecond)
	exporter.RecordValidatorRejection("denied_keyword")
	exporter.RecordBackendFailure("ollama/exaone3.5:7.8b", "timeout")
	exporter.RecordBackendLatency("ollama/exaone3.5:7.8b", 800*time.Millisecond)
	exporter.RecordAgentIterations(2)
	exporter.RecordProdQuery("success")

	families, err := exporter.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, family := range families {
		got[family.GetName()] = true
	}

	for _, want := range []string{
		"prodtalk_query_turn_latency_seconds",
		"prodtalk_query_turns_total",
		"prodtalk_sqlguard_rejections_total",
		"prodtalk_llm_backend_failures_total",
		"prodtalk_llm_backend_latency_seconds",
		"prodtalk_agent_iterations",
		"prodtalk_proddb_queries_total",
	} {
		if !got[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}
}

func TestExporterNilSafe(t *testing.T) {
	var exporter *PrometheusExporter

	// Callers run without metrics wired; nothing here may panic.
	exporter.RecordTurn("answer", time.Second)
	exporter.RecordValidatorRejection("denied_keyword")
	exporter.RecordBackendFailure("b", "timeout")
	exporter.RecordBackendLatency("b", time.Second)
	exporter.RecordAgentIterations(1)
	exporter.RecordProdQuery("error")
}
