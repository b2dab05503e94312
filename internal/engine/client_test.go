package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
)

func clientFor(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("expected server url to parse, got %v", err)
	}
	port, _ := strconv.Atoi(u.Port())
	return NewClient(u.Hostname(), port)
}

func TestSetParameter(t *testing.T) {
	var gotPath string
	c := clientFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	if err := c.SetParameter(context.Background(), "cell_start", 0.05, "m"); err != nil {
		t.Fatalf("expected set parameter to succeed, got %v", err)
	}
	if gotPath != "/parameters" {
		t.Errorf("expected /parameters, got %s", gotPath)
	}
}

func TestServerErrorIsRetryable(t *testing.T) {
	c := clientFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine busy", http.StatusServiceUnavailable)
	}))
	err := c.RebuildGeometry(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsRetryable(err) {
		t.Errorf("expected retryable error, got %v", err)
	}
}

func TestRemeshOperationFailure(t *testing.T) {
	c := clientFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "outer box tetrahedralization failed", http.StatusUnprocessableEntity)
	}))
	err := c.Remesh(context.Background())
	var meshErr *MeshError
	if !errors.As(err, &meshErr) {
		t.Fatalf("expected MeshError, got %v", err)
	}
	if meshErr.Message != "outer box tetrahedralization failed\n" {
		t.Errorf("unexpected message %q", meshErr.Message)
	}
}

func TestSolveOperationFailure(t *testing.T) {
	c := clientFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "singular system", http.StatusUnprocessableEntity)
	}))
	err := c.Solve(context.Background())
	var solveErr *SolveError
	if !errors.As(err, &solveErr) {
		t.Fatalf("expected SolveError, got %v", err)
	}
}

func TestEnumerateDomains(t *testing.T) {
	c := clientFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"domains":[{"id":1,"box":{"xmin":0,"xmax":0.04,"ymin":0,"ymax":0.04,"zmin":0.05,"zmax":0.2}}]}`))
	}))
	domains, err := c.EnumerateDomains(context.Background())
	if err != nil {
		t.Fatalf("expected enumeration to succeed, got %v", err)
	}
	if len(domains) != 1 || domains[0].ID != 1 {
		t.Fatalf("expected one domain with id 1, got %+v", domains)
	}
	if domains[0].Box.XMax != 0.04 {
		t.Errorf("expected x_max 0.04, got %g", domains[0].Box.XMax)
	}
}

func TestInterpolateFieldRowCountMismatch(t *testing.T) {
	c := clientFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"values":[[1,2,3]]}`))
	}))
	points := []Point{{Z: 0.1}, {Z: 0.2}}
	if _, err := c.InterpolateField(context.Background(), points, []string{"Ex", "Ey", "Ez"}); err == nil {
		t.Error("expected row count mismatch error, got nil")
	}
}
