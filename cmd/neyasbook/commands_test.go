package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/neyasbook/neyasbook/internal/blob"
	"github.com/neyasbook/neyasbook/internal/chat"
	"github.com/neyasbook/neyasbook/internal/manuscript"
	"github.com/neyasbook/neyasbook/internal/sweep"
)

type recordedRequest struct {
	Method  string
	Path    string
	Body    string
	Auth    string
	Project string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:  r.Method,
			Path:    r.URL.RequestURI(),
			Body:    body.String(),
			Auth:    r.Header.Get("Authorization"),
			Project: r.Header.Get("x-project-id"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client(token string) *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      token,
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAPIClient_Headers(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /sweep": `{"success":true,"message":"Archie has finished weaving. Scanned: 1, Skipped: 0."}`,
	})

	resp, err := ts.client("test-token").post(ctx, "/sweep", "neyas", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !result.Success {
		t.Error("success = false")
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	if r.Project != "neyas" {
		t.Errorf("project header = %q, want neyas", r.Project)
	}
}

func TestAPIClient_NoTokenNoHeader(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /health": `{"status":"ok"}`})

	resp, err := ts.client("").get(ctx, "/health", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if ts.requests[0].Auth != "" || ts.requests[0].Project != "" {
		t.Errorf("unexpected headers: %+v", ts.requests[0])
	}
}

func TestDecodeJSON_ErrorStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client("").get(ctx, "/entities/nobody", "neyas")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var v map[string]any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to mention 404", err.Error())
	}
}

func TestServerNotRunning(t *testing.T) {
	client := &apiClient{
		baseURL:    "http://127.0.0.1:1",
		httpClient: http.DefaultClient,
	}
	_, err := client.get(ctx, "/health", "")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestShowStatus(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health":   `{"status":"ok"}`,
		"GET /projects": `[{"id":"neyas","title":"Neyas"}]`,
	})

	if err := showStatus(ctx, ts.client("")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 2 {
		t.Errorf("expected 2 requests, got %d", len(ts.requests))
	}
}

func TestReportSweep(t *testing.T) {
	if err := reportSweep("neyas", sweep.Result{Scanned: 2}, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := reportSweep("neyas", sweep.Result{Scanned: 2, Failed: 1}, nil); err != nil {
		t.Errorf("partial failure should not be an error: %v", err)
	}

	err := reportSweep("neyas", sweep.Result{}, manuscript.ErrNotFound)
	if err == nil || !strings.Contains(err.Error(), "no manifest") {
		t.Errorf("err = %v, want missing manifest error", err)
	}

	boom := errors.New("boom")
	if err := reportSweep("neyas", sweep.Result{}, boom); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestArgValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"sweep needs project", []string{"sweep"}, "accepts 1 arg"},
		{"chat needs message", []string{"chat", "neyas"}, "message is required"},
		{"delete needs confirm", []string{"projects", "delete", "neyas"}, "--confirm"},
		{"config set needs value", []string{"config", "set", "server.port"}, "accepts 2 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer rootCmd.SetArgs(nil)
			rootCmd.SetArgs(tt.args)
			err := rootCmd.Execute()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestProjectsCreate_InProcess(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NEYAS_STORAGE_BACKEND", "fs")
	t.Setenv("NEYAS_STORAGE_DATA_DIR", dataDir)
	t.Setenv("NEYAS_OPENAI_API_KEY", "")

	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs([]string{"projects", "create", "neyas", "--title", "Neyas"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("create: %v", err)
	}

	store, err := blob.NewFileStore(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	m, err := manuscript.NewRepository(store).LoadManifest(ctx, "neyas")
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Title != "Neyas" {
		t.Errorf("manifest title = %q, want Neyas", m.Title)
	}

	rootCmd.SetArgs([]string{"projects", "create", "neyas"})
	if err := rootCmd.Execute(); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second create err = %v, want already exists", err)
	}
}

func TestSweepRequiresAPIKey(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NEYAS_STORAGE_DATA_DIR", t.TempDir())
	t.Setenv("NEYAS_OPENAI_API_KEY", "")

	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs([]string{"sweep", "neyas"})
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("err = %v, want missing API key", err)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func captureOutput(t *testing.T) (status, data *bytes.Buffer) {
	t.Helper()
	oldStatus, oldData, oldColor := statusOut, dataOut, noColor
	t.Cleanup(func() { statusOut, dataOut, noColor = oldStatus, oldData, oldColor })
	status, data = &bytes.Buffer{}, &bytes.Buffer{}
	statusOut, dataOut, noColor = status, data, true
	return status, data
}

func TestPrintTurn(t *testing.T) {
	status, data := captureOutput(t)

	printTurn(&chat.TurnResponse{
		Content: "The opening drags.",
		Suggestions: []manuscript.Suggestion{
			{Original: "He walked slowly.", Suggested: "He ran."},
			{Original: manuscript.ReformatMarker, Suggested: "Whole chapter"},
		},
	})

	if got := data.String(); got != "The opening drags.\n" {
		t.Errorf("data = %q", got)
	}
	out := status.String()
	for _, want := range []string{"Suggested patch", "Original: He walked slowly.", "Suggested reformat"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, manuscript.ReformatMarker) {
		t.Errorf("reformat marker should not be printed:\n%s", out)
	}
}

func TestPrintJSON(t *testing.T) {
	_, data := captureOutput(t)
	if err := printJSON(map[string]string{"id": "dr-elias-voss"}); err != nil {
		t.Fatalf("printJSON: %v", err)
	}
	if !strings.Contains(data.String(), `"id": "dr-elias-voss"`) {
		t.Errorf("data = %q", data.String())
	}
}

func TestRemoteSweep(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /sweep": `{"success":true,"message":"Archie has finished weaving. Scanned: 2, Skipped: 1.","result":{"scanned":2,"skipped":1,"failed":0}}`,
	})

	res, err := remoteSweep(ctx, ts.client("tok"), "neyas")
	if err != nil {
		t.Fatalf("remoteSweep: %v", err)
	}
	if res.Scanned != 2 || res.Skipped != 1 {
		t.Errorf("result = %+v", res)
	}
	r := ts.requests[0]
	if r.Method != http.MethodPost || r.Path != "/sweep" || r.Project != "neyas" || r.Auth != "Bearer tok" {
		t.Errorf("request = %+v", r)
	}
}

func TestRemoteSweep_MissingManifest(t *testing.T) {
	ts := newTestServer(t, nil)

	_, err := remoteSweep(ctx, ts.client(""), "ghost")
	if !errors.Is(err, manuscript.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := reportSweep("ghost", sweep.Result{}, err); err == nil || !strings.Contains(err.Error(), "no manifest") {
		t.Errorf("reportSweep err = %v", err)
	}
}
