package nodeodm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/testsupport"
)

func TestDownloadResultsExtractsTree(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1")
	node.SetArchive(testsupport.BuildArchive(t, map[string]string{
		"odm_orthophoto/odm_orthophoto.tif": "tif",
		"log.json":                          "{}",
		"odm_dem/dsm.tif":                   "dsm",
	}))
	client := newTestClient(t, node.URL())
	dest := filepath.Join(t.TempDir(), "results", "site-1")

	tree, err := client.DownloadResults(context.Background(), &domain.Job{ID: "task-1", Status: domain.JobStatusCompleted}, dest)
	if err != nil {
		t.Fatalf("DownloadResults returned error: %v", err)
	}
	want := []string{"log.json", "odm_dem/dsm.tif", "odm_orthophoto/odm_orthophoto.tif"}
	if !reflect.DeepEqual(tree.Entries, want) {
		t.Fatalf("unexpected entries %v", tree.Entries)
	}
	data, err := os.ReadFile(filepath.Join(dest, "odm_orthophoto", "odm_orthophoto.tif"))
	if err != nil || string(data) != "tif" {
		t.Fatalf("unexpected extracted content %q (%v)", data, err)
	}
}

func TestDownloadResultsRequiresCompletedJob(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	dest := filepath.Join(t.TempDir(), "never")

	_, err := client.DownloadResults(context.Background(), &domain.Job{ID: "task-1", Status: domain.JobStatusRunning}, dest)
	if !errors.Is(err, domain.ErrJobNotCompleted) {
		t.Fatalf("expected ErrJobNotCompleted, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatal("destination must not be created for an unfinished job")
	}
}

func TestDownloadResultsDetectsTruncation(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1")
	node.SetArchive(testsupport.BuildArchive(t, map[string]string{"log.json": "{}"}))
	node.TruncateDownload = true
	client := newTestClient(t, node.URL())

	_, err := client.DownloadResults(context.Background(), &domain.Job{ID: "task-1", Status: domain.JobStatusCompleted}, t.TempDir())
	if !errors.Is(err, domain.ErrDownloadIncomplete) {
		t.Fatalf("expected ErrDownloadIncomplete, got %v", err)
	}
}

func TestDownloadResultsRejectsCorruptArchive(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1")
	node.SetArchive([]byte("definitely not a zip archive"))
	client := newTestClient(t, node.URL())

	_, err := client.DownloadResults(context.Background(), &domain.Job{ID: "task-1", Status: domain.JobStatusCompleted}, t.TempDir())
	if !errors.Is(err, domain.ErrDownloadIncomplete) {
		t.Fatalf("expected ErrDownloadIncomplete, got %v", err)
	}
}

func TestEntryPathRejectsTraversal(t *testing.T) {
	if _, err := entryPath("../../etc/passwd"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
	if got, err := entryPath("/odm_dem//dsm.tif"); err != nil || got != "odm_dem/dsm.tif" {
		t.Fatalf("unexpected cleaned path %q (%v)", got, err)
	}
}
