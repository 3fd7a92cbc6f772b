package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveMaterializeCountsByResult(t *testing.T) {
	before := testutil.ToFloat64(MaterializeOutcomes.WithLabelValues("orthophoto", "error"))
	ObserveMaterialize("orthophoto", errors.New("boom"))
	after := testutil.ToFloat64(MaterializeOutcomes.WithLabelValues("orthophoto", "error"))
	if after != before+1 {
		t.Fatalf("expected error counter to increase by one, got %v -> %v", before, after)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	JobsSubmitted.Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "hydra_node_jobs_submitted_total") {
		t.Fatalf("expected submitted counter in exposition, got:\n%s", body)
	}
}
