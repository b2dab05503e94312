// Package engine talks to the external geometry/mesh/solve engine over its
// HTTP control API. The engine owns all geometry, mesh, and solution state;
// this package only issues commands and reads results.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/accelmap/rfqmap/internal/classify"
)

// Client communicates with one engine process. All long-running operations
// (rebuild, remesh, solve, interpolate) are blocking calls with no timeout:
// a hung engine blocks the sweep, by design.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(host string, port int) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		// No Timeout: geometry rebuilds and solves legitimately run for
		// minutes to hours.
		httpClient: &http.Client{},
	}
}

// statusErr is a non-transient HTTP-level failure from the engine.
type statusErr struct {
	op      string
	status  int
	message string
}

func (e *statusErr) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.op, e.status, truncate(e.message, 200))
}

// statusError maps a non-OK response to the error taxonomy. 429 and 5xx are
// transient; 422 is the engine reporting that the requested operation itself
// failed (bad geometry, mesher giving up, singular system).
func statusError(op string, status int, body []byte) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return &RetryableError{StatusCode: status, Message: string(body)}
	}
	return &statusErr{op: op, status: status, message: string(body)}
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError(path, resp.StatusCode, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// SetParameter writes a named scalar into the engine's parameter table.
// Geometry, mesh, and solver features read these implicitly on rebuild.
func (c *Client) SetParameter(ctx context.Context, name string, value float64, unit string) error {
	err := c.post(ctx, "/parameters", map[string]any{
		"name":  name,
		"value": value,
		"unit":  unit,
	}, nil)
	if err != nil {
		return fmt.Errorf("set parameter %s: %w", name, err)
	}
	return nil
}

// CreatePrimitive adds a geometry primitive and returns its handle.
func (c *Client) CreatePrimitive(ctx context.Context, kind string, params map[string]float64) (string, error) {
	var out struct {
		Handle string `json:"handle"`
	}
	err := c.post(ctx, "/geometry/primitives", map[string]any{
		"kind":   kind,
		"params": params,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", kind, err)
	}
	return out.Handle, nil
}

// BooleanOp runs a boolean operation over existing geometry handles.
func (c *Client) BooleanOp(ctx context.Context, kind string, inputs []string) (string, error) {
	var out struct {
		Handle string `json:"handle"`
	}
	err := c.post(ctx, "/geometry/boolean", map[string]any{
		"kind":   kind,
		"inputs": inputs,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("boolean %s: %w", kind, err)
	}
	return out.Handle, nil
}

// ImportGeometry loads an external CAD file into the model.
func (c *Client) ImportGeometry(ctx context.Context, path string) ([]string, error) {
	var out struct {
		Handles []string `json:"handles"`
	}
	err := c.post(ctx, "/geometry/import", map[string]any{"path": path}, &out)
	if err != nil {
		return nil, fmt.Errorf("import geometry %s: %w", path, err)
	}
	return out.Handles, nil
}

// RebuildGeometry re-evaluates the full geometry sequence against the
// current parameter table. Invalidates all previously enumerated domain ids.
func (c *Client) RebuildGeometry(ctx context.Context) error {
	if err := c.post(ctx, "/geometry/rebuild", nil, nil); err != nil {
		return fmt.Errorf("rebuild geometry: %w", err)
	}
	return nil
}

// EnumerateDomains lists the solid sub-volumes of the current geometry with
// their bounding boxes. Ids are only valid until the next rebuild.
func (c *Client) EnumerateDomains(ctx context.Context) ([]classify.Domain, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/geometry/domains", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enumerate domains: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("enumerate domains", resp.StatusCode, respBody)
	}

	var out struct {
		Domains []classify.Domain `json:"domains"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode domains: %w", err)
	}
	return out.Domains, nil
}

// SetNamedSelection binds domain ids to a named selection the mesh and
// physics features reference.
func (c *Client) SetNamedSelection(ctx context.Context, name string, ids []int) error {
	err := c.post(ctx, "/selections", map[string]any{
		"name":    name,
		"domains": ids,
	}, nil)
	if err != nil {
		return fmt.Errorf("set selection %s: %w", name, err)
	}
	return nil
}

// MeshSpec configures the mesh feature for one named selection.
type MeshSpec struct {
	Selection string  `json:"selection"`
	Kind      string  `json:"kind"` // triangular_surface | swept | free_tetrahedral
	MaxStep   float64 `json:"max_step,omitempty"`  // target element size [m]
	Divisions int     `json:"divisions,omitempty"` // swept: transverse divisions
}

// ConfigureMesh replaces the mesh settings for one selection.
func (c *Client) ConfigureMesh(ctx context.Context, spec MeshSpec) error {
	if err := c.post(ctx, "/mesh/config", spec, nil); err != nil {
		return fmt.Errorf("configure mesh %s: %w", spec.Selection, err)
	}
	return nil
}

// Remesh runs the full mesh sequence. A 422 from the engine means the mesher
// itself gave up and surfaces as a MeshError.
func (c *Client) Remesh(ctx context.Context) error {
	err := c.post(ctx, "/mesh/run", nil, nil)
	if err == nil {
		return nil
	}
	if opErr := asOperationFailure(err); opErr != "" {
		return &MeshError{Message: opErr}
	}
	return err
}

// Solve runs the stationary electrostatic solve. A 422 surfaces as a
// SolveError.
func (c *Client) Solve(ctx context.Context) error {
	err := c.post(ctx, "/solve", nil, nil)
	if err == nil {
		return nil
	}
	if opErr := asOperationFailure(err); opErr != "" {
		return &SolveError{Message: opErr}
	}
	return err
}

// Point is one interpolation request location.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// InterpolateField evaluates the requested quantities at each point. The
// result is one row per point in request order, one column per quantity.
func (c *Client) InterpolateField(ctx context.Context, points []Point, quantities []string) ([][]float64, error) {
	var out struct {
		Values [][]float64 `json:"values"`
	}
	err := c.post(ctx, "/solution/interpolate", map[string]any{
		"points":     points,
		"quantities": quantities,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("interpolate field: %w", err)
	}
	if len(out.Values) != len(points) {
		return nil, fmt.Errorf("interpolate field: expected %d rows, got %d", len(points), len(out.Values))
	}
	return out.Values, nil
}

// SaveSnapshot persists the full engine-resident model to a file on the
// engine host.
func (c *Client) SaveSnapshot(ctx context.Context, path string) error {
	if err := c.post(ctx, "/model/save", map[string]any{"path": path}, nil); err != nil {
		return fmt.Errorf("save snapshot %s: %w", path, err)
	}
	return nil
}

// LoadSnapshot restores a previously saved model.
func (c *Client) LoadSnapshot(ctx context.Context, path string) error {
	if err := c.post(ctx, "/model/load", map[string]any{"path": path}, nil); err != nil {
		return fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return nil
}

// Health probes the engine control endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	probe := &http.Client{Timeout: 5 * time.Second}
	resp, err := probe.Do(req)
	if err != nil {
		return fmt.Errorf("engine health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health: status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// asOperationFailure extracts the message of a 422 operation failure from a
// wrapped status error, empty otherwise.
func asOperationFailure(err error) string {
	var se *statusErr
	if errors.As(err, &se) && se.status == http.StatusUnprocessableEntity {
		return se.message
	}
	return ""
}
