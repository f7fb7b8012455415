package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoslide/nanoslide/internal/config"
	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
	"github.com/nanoslide/nanoslide/internal/pipeline"
)

type stubGenerator struct{ plan string }

func (s *stubGenerator) GeneratePlan(ctx context.Context, pdf []byte, prompt string) (string, error) {
	return s.plan, nil
}

func (s *stubGenerator) GenerateImage(ctx context.Context, prompt string, reference []byte) ([]byte, error) {
	return []byte("png"), nil
}

func (s *stubGenerator) GenerateVideo(ctx context.Context, prompt string, first, last []byte) ([]byte, error) {
	return []byte("mp4"), nil
}

type stubConcat struct{}

func (stubConcat) Concat(ctx context.Context, segments []string, output string) error {
	return os.WriteFile(output, []byte("fused"), 0o644)
}

func testServer(t *testing.T) (*httptest.Server, *pipeline.Orchestrator) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.Render.Workers = 1

	gen := &stubGenerator{plan: `{"version":1,"style":"s","slides":[
		{"index":0,"content":"a"},{"index":1,"content":"b"}]}`}
	orch := pipeline.NewWithGenerator(cfg, gen, observability.Nop())
	orch.UseConcatenator(stubConcat{})

	srv := httptest.NewServer(NewRouter(orch, cfg.Server, observability.Nop()))
	t.Cleanup(srv.Close)
	return srv, orch
}

func runPipeline(t *testing.T, orch *pipeline.Orchestrator) *domain.Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	doc := &domain.Document{ID: "paper-deadbeef", Path: path, SHA256: "deadbeef", Pages: 1}
	_, err := orch.Run(context.Background(), doc, "prompt", false)
	require.NoError(t, err)
	return doc
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListDocuments(t *testing.T) {
	srv, orch := testServer(t)

	var list struct {
		Documents []string `json:"documents"`
	}
	code := getJSON(t, srv.URL+"/api/v1/documents", &list)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, list.Documents)

	runPipeline(t, orch)
	code = getJSON(t, srv.URL+"/api/v1/documents", &list)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"paper-deadbeef"}, list.Documents)
}

func TestGetStatus(t *testing.T) {
	srv, orch := testServer(t)
	doc := runPipeline(t, orch)

	var status pipeline.DocumentStatus
	code := getJSON(t, fmt.Sprintf("%s/api/v1/documents/%s/status", srv.URL, doc.ID), &status)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, status.HasPlan)
	assert.Equal(t, 2, status.SlideCount)

	for _, s := range status.Stages {
		assert.True(t, s.Complete(), "stage %s should be complete", s.Stage)
	}
}

func TestGetStatusUnknownDocument(t *testing.T) {
	srv, _ := testServer(t)
	code := getJSON(t, srv.URL+"/api/v1/documents/nope-00000000/status", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetLineage(t *testing.T) {
	srv, orch := testServer(t)
	doc := runPipeline(t, orch)

	var body struct {
		Document string `json:"document"`
		Runs     []struct {
			Status string `json:"status"`
			Stages []struct {
				Stage string `json:"stage"`
			} `json:"stages"`
		} `json:"runs"`
	}
	code := getJSON(t, fmt.Sprintf("%s/api/v1/documents/%s/lineage", srv.URL, doc.ID), &body)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "completed", body.Runs[0].Status)

	var stageNames []string
	for _, s := range body.Runs[0].Stages {
		stageNames = append(stageNames, s.Stage)
	}
	assert.Equal(t, []string{"plan", "slides", "presentation", "video", "fused"}, stageNames)
}

func TestReadOnlySurface(t *testing.T) {
	srv, _ := testServer(t)
	resp, err := http.Post(srv.URL+"/api/v1/documents", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
