package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"wayfinder/internal/config"
	"wayfinder/internal/db"
	"wayfinder/internal/engine"
	"wayfinder/internal/migrate"
	"wayfinder/internal/oracle"
	"wayfinder/internal/repair"
)

const walkerSource = `package candidate

import "wayfinder/internal/grid"

// Walker sweeps the grid breadth-first and remembers its visit order.
type Walker struct {
	Width   int
	Height  int
	Visited []grid.Point
}

func NewWalker(width, height int) *Walker {
	return &Walker{Width: width, Height: height}
}

func (w *Walker) FindPath(g grid.Grid, start, end grid.Point) []grid.Point {
	queue := []grid.Point{start}
	parent := map[grid.Point]grid.Point{}
	seen := map[grid.Point]bool{start: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		w.Visited = append(w.Visited, cur)
		if cur == end {
			var path []grid.Point
			for p := end; p != start; p = parent[p] {
				path = append(path, p)
			}
			path = append(path, start)
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}
		for _, d := range []grid.Point{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}} {
			n := grid.Point{X: cur.X + d.X, Y: cur.Y + d.Y}
			if !g.Walkable(n) || seen[n] {
				continue
			}
			seen[n] = true
			parent[n] = cur
			queue = append(queue, n)
		}
	}
	return nil
}

func (w *Walker) VisitedOrder() []grid.Point {
	return w.Visited
}
`

type silentOracle struct{}

func (silentOracle) Complete(ctx context.Context, system, user string) (string, error) {
	return "", context.Canceled
}

type testServer struct {
	URL    string
	Engine *engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.NewOracle = func(p oracle.Provider) repair.Oracle { return silentOracle{} }
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestValidateEndpoint(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/validate", map[string]any{
		"source":    walkerSource,
		"type_name": "Walker",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate status %d: %s", res.StatusCode, string(data))
	}
	var report ReportResponse
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if !report.Valid || report.Score != 100 {
		t.Fatalf("expected clean report, got %+v", report)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/validate", map[string]any{
		"source":    "package candidate\nfunc broken( {",
		"type_name": "Walker",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.Valid || report.Score != 0 || len(report.Errors) != 1 {
		t.Fatalf("expected single critical, got %+v", report)
	}
}

func TestValidateRequiresSource(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/validate", map[string]any{
		"type_name": "Walker",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "bad_request" {
		t.Fatalf("unexpected error code %q", envelope.Error.Code)
	}
}

func TestAlgorithmLoadRunRemove(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/algorithms/Walker", map[string]any{
		"source":      walkerSource,
		"description": "hand written bfs",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("load status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/algorithms/Walker/run", map[string]any{
		"width":  3,
		"height": 3,
		"grid":   [][]int{{0, 0, 0}, {1, 1, 0}, {0, 0, 0}},
		"start":  map[string]int{"x": 0, "y": 0},
		"end":    map[string]int{"x": 0, "y": 2},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("run status %d: %s", res.StatusCode, string(data))
	}
	var result RunResultResponse
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal run result: %v", err)
	}
	if len(result.Path) == 0 || len(result.Visited) == 0 {
		t.Fatalf("expected a path, got %+v", result)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/algorithms/Walker", nil, nil)
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/algorithms/Walker", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAlgorithmLoadRejectsInvalid(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/algorithms/Walker", map[string]any{
		"source": "package candidate\n\ntype Walker struct{}\n",
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
}

func TestBuiltinsListed(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/algorithms", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var algos []AlgorithmResponse
	if err := json.Unmarshal(data, &algos); err != nil {
		t.Fatalf("unmarshal algorithms: %v", err)
	}
	names := map[string]bool{}
	for _, a := range algos {
		names[a.Name] = a.Builtin
	}
	for _, want := range []string{"bfs", "dijkstra", "astar"} {
		if builtin, ok := names[want]; !ok || !builtin {
			t.Fatalf("builtin %s missing from %v", want, names)
		}
	}
}

func TestTaskEndpoints(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/nope", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/repairs", map[string]any{
		"source":    walkerSource,
		"type_name": "Walker",
	}, nil)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("repair status %d: %s", res.StatusCode, string(data))
	}
	var submitted TaskSubmittedResponse
	if err := json.Unmarshal(data, &submitted); err != nil {
		t.Fatalf("unmarshal submission: %v", err)
	}
	srv.Engine.Wait()

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+submitted.TaskID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get task status %d: %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Status != "completed" {
		t.Fatalf("expected completed task, got %+v", task)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+submitted.TaskID+"/pause", nil, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict pausing finished task, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/tasks/"+submitted.TaskID, nil, nil)
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("remove task status %d: %s", res.StatusCode, string(data))
	}
}

func TestRepairRequiresTypeName(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/repairs", map[string]any{
		"source": walkerSource,
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
}

func TestProvidersListed(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/providers", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("providers status %d: %s", res.StatusCode, string(data))
	}
	var providers []ProviderResponse
	if err := json.Unmarshal(data, &providers); err != nil {
		t.Fatalf("unmarshal providers: %v", err)
	}
	if len(providers) == 0 {
		t.Fatalf("expected at least one provider")
	}
	defaults := 0
	for _, p := range providers {
		if p.Default {
			defaults++
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default provider, got %d", defaults)
	}
}

func TestAPIKeyEnforced(t *testing.T) {
	srv := newTestServer(t, AuthConfig{APIKey: "sekret"})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/algorithms", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health must stay open, got %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/algorithms", nil, map[string]string{"X-Api-Key": "sekret"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/algorithms", nil, map[string]string{"Authorization": "Bearer sekret"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with bearer key, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/algorithms", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d: %s", res.StatusCode, string(data))
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	if _, err := srv.Engine.ValidateSource(context.Background(), walkerSource, "Walker"); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?type=validation.checked", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var evts []EventResponse
	if err := json.Unmarshal(data, &evts); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(evts) != 1 || evts[0].Type != "validation.checked" {
		t.Fatalf("unexpected events: %+v", evts)
	}
}
