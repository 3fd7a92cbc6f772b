package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// NodeStep is one scripted answer to a task info poll. Lines are appended to
// the task's console output when the step is served.
type NodeStep struct {
	Code     int
	Progress float64
	Lines    []string
	Error    string
}

// SubmittedTask captures what the last task/new request carried.
type SubmittedTask struct {
	Name    string
	Options string
	Images  []string
	Token   string
}

// FakeNode is a scripted NodeODM server. Each info poll serves the next
// step; the last step repeats once the script is exhausted.
type FakeNode struct {
	Server *httptest.Server

	mu        sync.Mutex
	uuid      string
	steps     []NodeStep
	step      int
	output    []string
	archive   []byte
	submitted *SubmittedTask
	canceled  []string
	removed   []string

	// RejectSubmit makes task/new answer {"error": RejectSubmit}.
	RejectSubmit string
	// InfoFailures answers that many info polls with 502 before recovering.
	InfoFailures int
	// TruncateDownload advertises a longer body than is sent.
	TruncateDownload bool
	// OutputRequests records the line cursor of every output request.
	OutputRequests []int
	// InfoPolls counts served info requests.
	InfoPolls int
}

// NewFakeNode starts a node that hands out uuid for new tasks and follows steps.
func NewFakeNode(t testing.TB, uuid string, steps ...NodeStep) *FakeNode {
	t.Helper()

	n := &FakeNode{uuid: uuid, steps: steps}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /task/new", n.handleNew)
	mux.HandleFunc("GET /task/{uuid}/info", n.handleInfo)
	mux.HandleFunc("GET /task/{uuid}/output", n.handleOutput)
	mux.HandleFunc("GET /task/{uuid}/download/all.zip", n.handleDownload)
	mux.HandleFunc("POST /task/cancel", n.handleCommand(&n.canceled))
	mux.HandleFunc("POST /task/remove", n.handleCommand(&n.removed))
	mux.HandleFunc("GET /info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"version":        "2.5.0",
			"taskQueueCount": 1,
			"maxImages":      0,
			"engine":         "odm",
			"engineVersion":  "3.5.0",
		})
	})
	n.Server = httptest.NewServer(mux)
	t.Cleanup(n.Server.Close)
	return n
}

// URL is the node's base address.
func (n *FakeNode) URL() string {
	return n.Server.URL
}

// SetArchive sets the bytes served for all.zip.
func (n *FakeNode) SetArchive(data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.archive = data
}

// Submitted returns the last submission, if any.
func (n *FakeNode) Submitted() *SubmittedTask {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.submitted
}

// Canceled lists task ids canceled through the API.
func (n *FakeNode) Canceled() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.canceled...)
}

// Removed lists task ids removed through the API.
func (n *FakeNode) Removed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.removed...)
}

// Stats returns the number of info polls served and the output cursors requested.
func (n *FakeNode) Stats() (int, []int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.InfoPolls, append([]int(nil), n.OutputRequests...)
}

func (n *FakeNode) handleNew(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	task := &SubmittedTask{
		Name:    r.FormValue("name"),
		Options: r.FormValue("options"),
		Token:   r.URL.Query().Get("token"),
	}
	for _, fh := range r.MultipartForm.File["images"] {
		task.Images = append(task.Images, fh.Filename)
	}

	n.mu.Lock()
	n.submitted = task
	reject := n.RejectSubmit
	n.mu.Unlock()

	if reject != "" {
		writeJSON(w, http.StatusOK, map[string]string{"error": reject})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uuid": n.uuid})
}

func (n *FakeNode) handleInfo(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if r.PathValue("uuid") != n.uuid {
		writeJSON(w, http.StatusOK, map[string]string{"error": "task not found"})
		return
	}
	if n.InfoFailures > 0 {
		n.InfoFailures--
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	n.InfoPolls++
	if len(n.steps) == 0 {
		writeJSON(w, http.StatusOK, infoBody(n.uuid, NodeStep{Code: 10}))
		return
	}

	idx := n.step
	if idx >= len(n.steps) {
		idx = len(n.steps) - 1
	} else {
		n.output = append(n.output, n.steps[idx].Lines...)
		n.step++
	}
	writeJSON(w, http.StatusOK, infoBody(n.uuid, n.steps[idx]))
}

func infoBody(uuid string, step NodeStep) map[string]any {
	status := map[string]any{"code": step.Code}
	if step.Error != "" {
		status["errorMessage"] = step.Error
	}
	return map[string]any{
		"uuid":           uuid,
		"name":           "fake",
		"dateCreated":    1700000000000,
		"processingTime": 1000,
		"imagesCount":    3,
		"progress":       step.Progress,
		"status":         status,
	}
}

func (n *FakeNode) handleOutput(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()

	line, _ := strconv.Atoi(r.URL.Query().Get("line"))
	n.OutputRequests = append(n.OutputRequests, line)
	if line < 0 || line > len(n.output) {
		line = len(n.output)
	}
	writeJSON(w, http.StatusOK, append([]string{}, n.output[line:]...))
}

func (n *FakeNode) handleDownload(w http.ResponseWriter, _ *http.Request) {
	n.mu.Lock()
	data := n.archive
	truncate := n.TruncateDownload
	n.mu.Unlock()

	w.Header().Set("Content-Type", "application/zip")
	if truncate {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)+1024))
		_, _ = w.Write(data[:len(data)/2])
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (n *FakeNode) handleCommand(record *[]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.FormValue("uuid")
		n.mu.Lock()
		*record = append(*record, id)
		ok := id == n.uuid
		n.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusOK, map[string]string{"error": "task not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
