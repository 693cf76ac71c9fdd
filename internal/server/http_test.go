package server

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sanonone/llahdb/pkg/engine"
)

func randomJSONPoints(rng *rand.Rand, n int) []Point {
	points := make([]Point, 0, n)
	for len(points) < n {
		p := Point{X: rng.Float64() * 10, Y: rng.Float64() * 10}
		ok := true
		for _, q := range points {
			dx, dy := p.X-q.X, p.Y-q.Y
			if dx*dx+dy*dy < 1 {
				ok = false
				break
			}
		}
		if ok {
			points = append(points, p)
		}
	}
	return points
}

func newTestServer(t *testing.T, token string) (*httptest.Server, *engine.Engine) {
	t.Helper()
	opts := engine.DefaultOptions(t.TempDir())
	opts.AutoSaveInterval = 0
	eng, err := engine.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(eng, "", token)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		eng.Close()
	})
	return ts, eng
}

func doJSON(t *testing.T, method, url string, body any, token string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealthzAndAuth(t *testing.T) {
	ts, _ := newTestServer(t, "test-secret-token")

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, "GET", ts.URL+"/llah/documents", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("protected expected 401, got %d", resp.StatusCode)
	}

	resp = doJSON(t, "GET", ts.URL+"/llah/documents", nil, "wrong")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token expected 401, got %d", resp.StatusCode)
	}

	resp = doJSON(t, "GET", ts.URL+"/llah/documents", nil, "test-secret-token")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("protected with token expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics expected 200, got %d", resp.StatusCode)
	}
}

func TestRegisterLookupFlow(t *testing.T) {
	ts, _ := newTestServer(t, "")
	rng := rand.New(rand.NewSource(3))
	alpha := randomJSONPoints(rng, 20)
	beta := randomJSONPoints(rng, 20)

	resp := doJSON(t, "POST", ts.URL+"/llah/learn", LearnRequest{PointSets: [][]Point{alpha, beta}}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("learn expected 200, got %d", resp.StatusCode)
	}

	for name, pts := range map[string][]Point{"alpha": alpha, "beta": beta} {
		resp = doJSON(t, "POST", ts.URL+"/llah/documents", RegisterRequest{Name: name, Points: pts}, "")
		var info engine.DocumentInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("register %s expected 201, got %d", name, resp.StatusCode)
		}
		if info.Name != name || info.Landmarks != 20 {
			t.Errorf("unexpected info %+v", info)
		}
	}

	// Duplicate name.
	resp = doJSON(t, "POST", ts.URL+"/llah/documents", RegisterRequest{Name: "alpha", Points: alpha}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate expected 409, got %d", resp.StatusCode)
	}

	// Learning once documents exist.
	resp = doJSON(t, "POST", ts.URL+"/llah/learn", LearnRequest{PointSets: [][]Point{alpha}}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("late learn expected 409, got %d", resp.StatusCode)
	}

	// Too few points.
	resp = doJSON(t, "POST", ts.URL+"/llah/documents", RegisterRequest{Name: "tiny", Points: alpha[:5]}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("too few points expected 400, got %d", resp.StatusCode)
	}

	resp = doJSON(t, "POST", ts.URL+"/llah/lookup", LookupRequest{Points: beta}, "")
	var lr LookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lookup expected 200, got %d", resp.StatusCode)
	}
	if len(lr.Results) == 0 || lr.Results[0].Document.Name != "beta" {
		t.Fatalf("expected beta first, got %+v", lr.Results)
	}
	if lr.Results[0].SeenLandmarks == 0 || len(lr.Results[0].Matches) == 0 {
		t.Errorf("expected landmark correspondences, got %+v", lr.Results[0])
	}

	resp = doJSON(t, "POST", ts.URL+"/llah/lookup/batch", BatchLookupRequest{Queries: [][]Point{alpha, beta}}, "")
	var br BatchLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(br.Results) != 2 {
		t.Fatalf("expected 2 batch results, got %d", len(br.Results))
	}
	for i, want := range []string{"alpha", "beta"} {
		if len(br.Results[i].Results) == 0 || br.Results[i].Results[0].Document.Name != want {
			t.Errorf("query %d: expected %s first", i, want)
		}
	}

	resp = doJSON(t, "GET", ts.URL+"/llah/documents?prefix=al", nil, "")
	var dr DocumentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(dr.Documents) != 1 || dr.Documents[0].Name != "alpha" {
		t.Errorf("prefix listing: %+v", dr.Documents)
	}

	resp = doJSON(t, "GET", ts.URL+"/llah/documents/beta", nil, "")
	var doc DocumentResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if doc.Name != "beta" || len(doc.Points) != 20 || doc.Points[0] != beta[0] {
		t.Errorf("unexpected document %+v", doc.DocumentInfo)
	}

	resp = doJSON(t, "GET", ts.URL+"/llah/documents/missing", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing expected 404, got %d", resp.StatusCode)
	}
}

func TestSystemEndpoints(t *testing.T) {
	ts, eng := newTestServer(t, "")
	rng := rand.New(rand.NewSource(5))
	pts := randomJSONPoints(rng, 16)

	resp := doJSON(t, "POST", ts.URL+"/llah/documents", RegisterRequest{Points: pts}, "")
	var info engine.DocumentInfo
	json.NewDecoder(resp.Body).Decode(&info)
	resp.Body.Close()
	if info.Name == "" {
		t.Fatal("expected a generated name")
	}

	resp = doJSON(t, "POST", ts.URL+"/system/save", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("save expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, "GET", ts.URL+"/llah/stats", nil, "")
	var st engine.Stats
	json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if st.Documents != 1 || st.Dirty != 0 {
		t.Errorf("unexpected stats %+v", st)
	}

	resp = doJSON(t, "POST", ts.URL+"/system/reset", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("reset expected 200, got %d", resp.StatusCode)
	}
	if n := eng.Stats().Documents; n != 0 {
		t.Errorf("expected empty engine after reset, got %d documents", n)
	}
}

func TestMalformedBody(t *testing.T) {
	ts, _ := newTestServer(t, "")
	resp, err := http.Post(ts.URL+"/llah/lookup", "application/json", bytes.NewBufferString("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] == "" {
		t.Error("expected an error message")
	}
}
