// Package integration provides integration testing utilities for linkinbio.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestHarness manages the test environment for integration tests: an HTTP
// server hosting stories lists and images, and a linkinbio process serving
// sessions over them.
type TestHarness struct {
	t             *testing.T
	httpServer    *http.Server
	httpPort      int
	linkinbioCmd  *exec.Cmd
	linkinbioPort int
	tempDir       string
	cancel        context.CancelFunc
}

// State is the subset of a session state the tests inspect.
type State struct {
	Status      string `json:"status"`
	ActiveIndex int    `json:"active_index"`
	Seq         uint64 `json:"seq"`
	Failed      []int  `json:"failed"`
	Total       int    `json:"total"`
	Label       string `json:"label"`
	Message     string `json:"message"`
}

// NewTestHarness creates a new test harness.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	return &TestHarness{
		t:             t,
		httpPort:      findAvailablePort(t),
		linkinbioPort: findAvailablePort(t),
	}
}

// StartHTTPServer starts an HTTP server serving the given PNG images and
// any files added with AddFile.
func (h *TestHarness) StartHTTPServer(images ...string) {
	h.t.Helper()

	h.tempDir = h.t.TempDir()
	for _, name := range images {
		h.AddFile(name, pngBytes(h.t))
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(h.tempDir)))

	h.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", h.httpPort),
		Handler: mux,
	}

	go func() {
		if err := h.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.t.Logf("HTTP server error: %v", err)
		}
	}()

	h.waitForServer(h.AssetURL(""), 5*time.Second)
	h.t.Logf("HTTP server started on port %d", h.httpPort)
}

// AddFile writes a file served by the HTTP server.
func (h *TestHarness) AddFile(name string, data []byte) {
	h.t.Helper()

	if h.tempDir == "" {
		h.tempDir = h.t.TempDir()
	}
	if err := os.WriteFile(filepath.Join(h.tempDir, name), data, 0644); err != nil {
		h.t.Fatalf("failed to write %s: %v", name, err)
	}
}

// AddStories writes a JSON stories list of the given sources, turning bare
// file names into URLs on the HTTP server.
func (h *TestHarness) AddStories(name string, sources ...string) {
	h.t.Helper()

	entries := make([]string, len(sources))
	for i, s := range sources {
		entries[i] = h.AssetURL(s)
	}

	data, err := json.Marshal(map[string]any{"offers": entries})
	if err != nil {
		h.t.Fatalf("failed to encode stories: %v", err)
	}
	h.AddFile(name, data)
}

// AssetURL returns the URL of a file on the HTTP server.
func (h *TestHarness) AssetURL(name string) string {
	return fmt.Sprintf("http://localhost:%d/%s", h.httpPort, name)
}

// StartLinkinbio starts the linkinbio binary serving the named stories list.
func (h *TestHarness) StartLinkinbio(storiesName string, duration time.Duration) {
	h.t.Helper()

	binaryPath := h.findLinkinbioBinary()

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	h.linkinbioCmd = exec.CommandContext(ctx, binaryPath, "serve",
		"--config", filepath.Join(h.tempDir, "none.yml"),
		"--port", fmt.Sprintf("%d", h.linkinbioPort),
		"--stories", h.AssetURL(storiesName),
		"--assets-dir", h.tempDir,
		"--duration", fmt.Sprintf("%d", duration.Milliseconds()),
	)
	h.linkinbioCmd.Dir = h.tempDir
	h.linkinbioCmd.Stdout = os.Stdout
	h.linkinbioCmd.Stderr = os.Stderr

	if err := h.linkinbioCmd.Start(); err != nil {
		h.t.Fatalf("failed to start linkinbio: %v", err)
	}

	h.waitForServer(h.url("/health"), 10*time.Second)
	h.t.Logf("linkinbio started on port %d", h.linkinbioPort)
}

func (h *TestHarness) url(path string) string {
	return fmt.Sprintf("http://localhost:%d%s", h.linkinbioPort, path)
}

// Mount creates a session and returns its id.
func (h *TestHarness) Mount() string {
	h.t.Helper()

	var resp struct {
		ID string `json:"id"`
	}
	h.do("POST", "/sessions", "", http.StatusCreated, &resp)
	return resp.ID
}

// FetchState fetches a session's state.
func (h *TestHarness) FetchState(id string) State {
	h.t.Helper()

	var st State
	h.do("GET", "/sessions/"+id, "", http.StatusOK, &st)
	return st
}

// SendInput posts an input body to a session.
func (h *TestHarness) SendInput(id, body string) State {
	h.t.Helper()

	var resp struct {
		State State `json:"state"`
	}
	h.do("POST", "/sessions/"+id+"/input", body, http.StatusOK, &resp)
	return resp.State
}

// FetchStories fetches the normalized stories list.
func (h *TestHarness) FetchStories() []map[string]string {
	h.t.Helper()

	var resp struct {
		Stories []map[string]string `json:"stories"`
	}
	h.do("GET", "/stories", "", http.StatusOK, &resp)
	return resp.Stories
}

// FetchHealth fetches the health endpoint and returns the JSON response.
func (h *TestHarness) FetchHealth() string {
	h.t.Helper()

	resp, err := http.Get(h.url("/health"))
	if err != nil {
		h.t.Fatalf("failed to fetch health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("failed to read health body: %v", err)
	}

	return string(body)
}

func (h *TestHarness) do(method, path, body string, wantStatus int, out any) {
	h.t.Helper()

	req, err := http.NewRequest(method, h.url(path), strings.NewReader(body))
	if err != nil {
		h.t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		data, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, wantStatus, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			h.t.Fatalf("%s %s: failed to decode response: %v", method, path, err)
		}
	}
}

// Cleanup stops all running services.
func (h *TestHarness) Cleanup() {
	h.t.Helper()

	if h.cancel != nil {
		h.cancel()
	}
	if h.linkinbioCmd != nil && h.linkinbioCmd.Process != nil {
		h.linkinbioCmd.Process.Kill()
		h.linkinbioCmd.Wait()
	}

	if h.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.httpServer.Shutdown(ctx)
	}
}

// findLinkinbioBinary locates the linkinbio binary, skipping the test when
// it has not been built.
func (h *TestHarness) findLinkinbioBinary() string {
	h.t.Helper()

	candidates := []string{
		"../../linkinbio",           // From test/integration
		"./linkinbio",               // From project root
		"../linkinbio",              // From test directory
		"./cmd/linkinbio/linkinbio", // Built in place
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, _ := filepath.Abs(path)
			h.t.Logf("Found linkinbio binary at: %s", absPath)
			return absPath
		}
	}

	h.t.Skip("linkinbio binary not found. Run 'go build -o linkinbio ./cmd/linkinbio' first")
	return ""
}

// waitForServer waits for a server to become available.
func (h *TestHarness) waitForServer(url string, timeout time.Duration) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	h.t.Fatalf("server at %s did not become available within %v", url, timeout)
}

// WaitForCondition polls until a condition is met or timeout occurs.
func (h *TestHarness) WaitForCondition(condition func() bool, timeout time.Duration, description string) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}

		<-ticker.C
		if time.Now().After(deadline) {
			h.t.Fatalf("timeout waiting for condition: %s", description)
		}
	}
}

// findAvailablePort finds an available TCP port.
func findAvailablePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(4, 4, color.RGBA{B: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}
