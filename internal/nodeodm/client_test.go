package nodeodm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/testsupport"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := New(Config{
		BaseURL:       baseURL,
		Token:         "secret",
		PollInterval:  time.Millisecond,
		RetryInterval: time.Millisecond,
		PollRetries:   3,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client
}

func writeImages(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		p := filepath.Join(dir, name)
		testsupport.WriteFile(t, p, 128)
		paths = append(paths, p)
	}
	return paths
}

func TestNewBuildsAddressFromHostAndPort(t *testing.T) {
	client, err := New(Config{Host: "odm.internal", Port: 3000})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if client.BaseURL() != "http://odm.internal:3000" {
		t.Fatalf("unexpected base url %s", client.BaseURL())
	}
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without host")
	}
}

func TestSubmitSendsImagesAndOptions(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1")
	client := newTestClient(t, node.URL())
	inputs := writeImages(t, "a.jpg", "b.jpg", "c.jpg")

	job, err := client.Submit(context.Background(), inputs, domain.ProcessingOptions{
		"dsm":        true,
		"pc-quality": "high",
	}, WithName("site-1"))
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if job.ID != "task-1" || job.Status != domain.JobStatusQueued {
		t.Fatalf("unexpected job %+v", job)
	}

	sub := node.Submitted()
	if sub == nil {
		t.Fatal("node did not receive a submission")
	}
	if len(sub.Images) != 3 || sub.Images[0] != "a.jpg" {
		t.Fatalf("unexpected images %v", sub.Images)
	}
	if sub.Name != "site-1" || sub.Token != "secret" {
		t.Fatalf("unexpected name/token %q %q", sub.Name, sub.Token)
	}
	var pairs []optionPair
	if err := json.Unmarshal([]byte(sub.Options), &pairs); err != nil {
		t.Fatalf("options are not json: %v", err)
	}
	if len(pairs) != 2 || pairs[0].Name != "dsm" || pairs[1].Name != "pc-quality" || pairs[1].Value != "high" {
		t.Fatalf("unexpected options %+v", pairs)
	}
}

func TestSubmitRejected(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1")
	node.RejectSubmit = "Not enough images"
	client := newTestClient(t, node.URL())

	_, err := client.Submit(context.Background(), writeImages(t, "a.jpg"), nil)
	if !errors.Is(err, domain.ErrNodeRejected) {
		t.Fatalf("expected ErrNodeRejected, got %v", err)
	}
}

func TestSubmitUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := newTestClient(t, url)
	_, err := client.Submit(context.Background(), writeImages(t, "a.jpg"), nil)
	if !errors.Is(err, domain.ErrNodeUnreachable) {
		t.Fatalf("expected ErrNodeUnreachable, got %v", err)
	}
}

func TestSubmitRequiresInputs(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	if _, err := client.Submit(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error without inputs")
	}
}

func TestJobReattachesByID(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1", testsupport.NodeStep{Code: 20, Progress: 42})
	client := newTestClient(t, node.URL())

	job, err := client.Job(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Job returned error: %v", err)
	}
	if job.Status != domain.JobStatusRunning || job.Progress != 42 || job.ImagesCount != 3 {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.DateCreated.IsZero() {
		t.Fatal("expected creation date from node")
	}

	if _, err := client.Job(context.Background(), "missing"); !errors.Is(err, domain.ErrNodeRejected) {
		t.Fatalf("expected ErrNodeRejected for unknown task, got %v", err)
	}
}

func TestCancelAndRemove(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1")
	client := newTestClient(t, node.URL())
	job := &domain.Job{ID: "task-1"}

	if err := client.Cancel(context.Background(), job); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if err := client.Remove(context.Background(), job); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if got := node.Canceled(); len(got) != 1 || got[0] != "task-1" {
		t.Fatalf("unexpected canceled ids %v", got)
	}
	if got := node.Removed(); len(got) != 1 || got[0] != "task-1" {
		t.Fatalf("unexpected removed ids %v", got)
	}
	if err := client.Cancel(context.Background(), &domain.Job{ID: "other"}); !errors.Is(err, domain.ErrNodeRejected) {
		t.Fatalf("expected rejection for unknown task, got %v", err)
	}
}

func TestInfo(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1")
	client := newTestClient(t, node.URL())

	info, err := client.Info(context.Background())
	if err != nil {
		t.Fatalf("Info returned error: %v", err)
	}
	if info.Version != "2.5.0" || info.TaskQueueCount != 1 || info.Engine != "odm" {
		t.Fatalf("unexpected node info %+v", info)
	}
}

func TestErrorMessage(t *testing.T) {
	cases := map[string]string{
		`{"error":"bad options"}`: "bad options",
		`{"uuid":"x"}`:            "",
		`not json`:                "",
		`{"error":{"code":3}}`:    `{"code":3}`,
	}
	for body, want := range cases {
		if got := errorMessage([]byte(body)); got != want {
			t.Fatalf("errorMessage(%s) = %q, want %q", body, got, want)
		}
	}
}
