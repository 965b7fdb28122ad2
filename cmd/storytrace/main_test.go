package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dshills/storytrace/internal/artifact"
	llmpkg "github.com/dshills/storytrace/internal/llm"
	"github.com/dshills/storytrace/internal/llm/llmtest"
)

const srsText = "REQ-1 The nurse shall record patient vitals.\nREQ-2 The clerk shall print monthly invoices.\n"

var narratives = map[string]string{
	"REQ-1": "As a nurse, I want to record patient vitals so that the chart is current.",
	"REQ-2": "As a clerk, I want to print monthly invoices so that billing closes on time.",
}

var snippets = map[string]string{
	"REQ-1": "The nurse shall record patient vitals.",
	"REQ-2": "The clerk shall print monthly invoices.",
}

// storyBody is a story answer without its opening brace, which the
// provider restores from the assistant prefill.
func storyBody(reqID string) string {
	story := fmt.Sprintf(`{"epic":"","user_story":%q,"acceptance_criteria":[{"given":"a signed-in user","when":"the action is taken","then":"audit logging records it"}],"priority":"Should","source_requirement_ids":[%q],"citations":[{"page":1,"snippet":%q}]}`,
		narratives[reqID], reqID, snippets[reqID])
	return strings.TrimPrefix(story, "{")
}

// setupMockAnthropicServer answers every messages request with a story for
// the requirement named in the prompt and counts the calls.
func setupMockAnthropicServer(t *testing.T) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		reqID := llmtest.RequirementID(&llmpkg.Request{UserPrompt: req.Messages[0].Content})
		resp, _ := json.Marshal(map[string]any{
			"model":       "claude-sonnet-4-6",
			"stop_reason": "end_turn",
			"content":     []map[string]string{{"type": "text", "text": storyBody(reqID)}},
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(resp) //nolint:errcheck
	}))
	original := llmpkg.AnthropicAPIURL()
	llmpkg.SetAnthropicAPIURL(srv.URL)
	t.Cleanup(func() {
		srv.Close()
		llmpkg.SetAnthropicAPIURL(original)
	})
	return &calls
}

// setTestEnv points the CLI at the mock provider and the offline embedder.
func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORYTRACE_MODEL", "anthropic:claude-sonnet-4-6")
	t.Setenv("STORYTRACE_EMBED_MODEL", "lexical")
	t.Setenv("STORYTRACE_PROFILE", "")
	t.Setenv("ANTHROPIC_API_KEY", "test-key-for-integration-tests")
	for _, k := range []string{"DEDUPE", "DUP_THRESHOLD", "BATCH_LLM_SIZE", "LLM_INNER_BATCH", "MIN_ALIGNMENT", "TEST_MODE", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func writeSRS(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "srs.txt")
	if err := os.WriteFile(path, []byte(srsText), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the CLI with args and returns stdout, stderr and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) int {
	var ee *exitErr
	if errors.As(err, &ee) {
		return ee.code
	}
	if err != nil {
		return 1
	}
	return 0
}

func TestRun_AllArtifacts(t *testing.T) {
	setTestEnv(t)
	calls := setupMockAnthropicServer(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	metricsPath := filepath.Join(dir, "metrics.prom")

	stdout, _, err := execute(t, "run", writeSRS(t, dir), "--out-dir", out, "--metrics-out", metricsPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("model calls = %d, want 2", got)
	}
	for _, name := range []string{
		"requirements.json", "stories.json", "duplicates.json", "summary.json",
		"testcases.csv", "coverage_matrix.csv", "epic_coverage.csv", "compliance_evidence.csv",
		filepath.Join("features", "General.feature"),
	} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	matrix, err := os.ReadFile(filepath.Join(out, "coverage_matrix.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(matrix), ",Covered"); n != 2 {
		t.Errorf("expected 2 covered rows, got %d:\n%s", n, matrix)
	}

	prom, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(prom), "storytrace_requirements_total 2") {
		t.Errorf("metrics missing requirement count:\n%s", prom)
	}
	for _, want := range []string{"wrote 2 stories", "wrote compliance evidence for 2 stories", "summary written to " + filepath.Join(out, "summary.json")} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output, got:\n%s", want, stdout)
		}
	}
}

func TestExtract_MarkdownSummary(t *testing.T) {
	setTestEnv(t)
	setupMockAnthropicServer(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out")

	if _, _, err := execute(t, "extract", writeSRS(t, dir), "--out-dir", out, "--format", "md"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "summary.md"))
	if err != nil {
		t.Fatalf("summary.md: %v", err)
	}
	if !strings.Contains(string(data), "# Storytrace Run Summary") {
		t.Errorf("unexpected summary:\n%s", data)
	}
}

func TestExtract_ConfigFileAndFlagPrecedence(t *testing.T) {
	setTestEnv(t)
	setupMockAnthropicServer(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "storytrace.yaml")
	cfgOut := filepath.Join(dir, "from-config")
	flagOut := filepath.Join(dir, "from-flag")
	if err := os.WriteFile(cfgPath, []byte("output:\n  dir: "+cfgOut+"\npipeline:\n  dedupe: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := execute(t, "extract", writeSRS(t, dir), "--config", cfgPath); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfgOut, "stories.json")); err != nil {
		t.Errorf("config out dir not used: %v", err)
	}

	if _, _, err := execute(t, "extract", writeSRS(t, dir), "--config", cfgPath, "--out-dir", flagOut); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if _, err := os.Stat(filepath.Join(flagOut, "stories.json")); err != nil {
		t.Errorf("--out-dir did not override config: %v", err)
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string) []string
		want  int
	}{
		{
			name: "missing document",
			setup: func(t *testing.T, dir string) []string {
				return []string{"extract", filepath.Join(dir, "nope.txt"), "--out-dir", dir}
			},
			want: exitInput,
		},
		{
			name: "invalid threshold",
			setup: func(t *testing.T, dir string) []string {
				return []string{"extract", writeSRS(t, dir), "--dup-threshold", "1.5"}
			},
			want: exitInput,
		},
		{
			name: "unknown format",
			setup: func(t *testing.T, dir string) []string {
				return []string{"extract", writeSRS(t, dir), "--format", "xml"}
			},
			want: exitInput,
		},
		{
			name: "no api key",
			setup: func(t *testing.T, dir string) []string {
				t.Setenv("ANTHROPIC_API_KEY", "")
				return []string{"extract", writeSRS(t, dir), "--out-dir", dir}
			},
			want: exitProvider,
		},
		{
			name: "dedupe without embedder",
			setup: func(t *testing.T, dir string) []string {
				return []string{"extract", writeSRS(t, dir), "--out-dir", dir, "--embed-model", "word2vec"}
			},
			want: exitProvider,
		},
		{
			name: "coverage without artifacts",
			setup: func(t *testing.T, dir string) []string {
				return []string{"coverage", "--out-dir", dir}
			},
			want: exitInput,
		},
		{
			name: "compliance without artifacts",
			setup: func(t *testing.T, dir string) []string {
				return []string{"compliance", "--out-dir", dir}
			},
			want: exitInput,
		},
		{
			name: "testcases without stories",
			setup: func(t *testing.T, dir string) []string {
				return []string{"testcases", "--out-dir", dir}
			},
			want: exitInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setTestEnv(t)
			setupMockAnthropicServer(t)
			args := tt.setup(t, t.TempDir())
			_, _, err := execute(t, args...)
			if got := exitCode(err); got != tt.want {
				t.Errorf("exit code = %d, want %d (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestStagesSeparately(t *testing.T) {
	setTestEnv(t)
	setupMockAnthropicServer(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out")

	steps := [][]string{
		{"extract", writeSRS(t, dir), "--out-dir", out},
		{"testcases", "--out-dir", out},
		{"coverage", "--out-dir", out},
		{"compliance", "--out-dir", out},
	}
	for _, args := range steps {
		if _, _, err := execute(t, args...); err != nil {
			t.Fatalf("%s: %v", args[0], err)
		}
	}
	evidence, err := artifact.ReadCSV(filepath.Join(out, "compliance_evidence.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if len(evidence.Rows) != 2 {
		t.Errorf("expected 2 compliance rows, got %d", len(evidence.Rows))
	}
}

func TestProfilesCommand(t *testing.T) {
	stdout, _, err := execute(t, "profiles")
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	for _, name := range []string{"general", "hipaa", "fda-part11", "samd"} {
		if !strings.Contains(stdout, name) {
			t.Errorf("profiles output missing %s:\n%s", name, stdout)
		}
	}
}
