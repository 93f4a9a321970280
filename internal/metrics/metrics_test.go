package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/ilcdirac/pkg/model"
)

func TestStepFinished(t *testing.T) {
	m := New()
	m.StepFinished(model.KindMarlin, model.StepStateDone, 0, 2*time.Second)
	m.StepFinished(model.KindMarlin, model.StepStateFailed, 7, time.Second)
	m.StepFinished(model.KindMarlin, model.StepStateDone, 0, time.Second)

	body := scrape(t, m)
	for _, want := range []string{
		`ilcdirac_steps_total{kind="Marlin",state="DONE"} 2`,
		`ilcdirac_steps_total{kind="Marlin",state="FAILED"} 1`,
		`ilcdirac_application_exit_codes_total{code="7",kind="Marlin"} 1`,
		`ilcdirac_step_duration_seconds_count{kind="Marlin"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ReportReceived("status")
	m.RequestServed("PUT", 200)

	body := scrape(t, m)
	for _, want := range []string{
		`ilcdirac_job_reports_total{type="status"} 1`,
		`ilcdirac_http_requests_total{method="PUT",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
