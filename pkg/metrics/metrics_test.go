package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/butter-bot-machines/childproc/pkg/metrics"
)

func TestRegistryExposesMetrics(t *testing.T) {
	metrics.EmitBuildInfo()
	metrics.RecordSpawn("/usr/bin/metrics_test_prog")
	metrics.RecordSpawnFailure("not_found")
	metrics.RecordExit("metrics_test_prog", 0)
	metrics.RecordExit("metrics_test_prog", 3)
	metrics.RecordSignal(15)
	metrics.SetRunning(2)
	metrics.IncrementRestart("metrics_test_service")
	metrics.IncrementRestart("metrics_test_service")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status code from metrics handler: %d", rec.Code)
	}

	body := rec.Body.String()
	for _, line := range []string{
		`childproc_spawns_total{program="metrics_test_prog"} 1`,
		`childproc_exits_total{outcome="success",program="metrics_test_prog"} 1`,
		`childproc_exits_total{outcome="failure",program="metrics_test_prog"} 1`,
		`childproc_signals_total{signal="15"} 1`,
		`childproc_running 2`,
		`childproc_restarts_total{name="metrics_test_service"} 2`,
		`childproc_build_info{`,
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected metric line %q in body:\n%s", line, body)
		}
	}
	if !strings.Contains(body, `childproc_spawn_failures_total{reason="not_found"}`) {
		t.Fatalf("expected spawn failure metric in body:\n%s", body)
	}

	metrics.ResetProcess("metrics_test_service")
	rec = httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)
	if strings.Contains(rec.Body.String(), `name="metrics_test_service"`) {
		t.Fatal("restart series should be removed after reset")
	}
}
