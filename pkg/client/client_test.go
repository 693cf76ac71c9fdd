package client

import (
	"errors"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sanonone/llahdb/internal/server"
	"github.com/sanonone/llahdb/pkg/engine"
)

func randomPoints(rng *rand.Rand, n int) []Point {
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

// startServer runs a real engine behind an httptest server and returns a
// client pointed at it.
func startServer(t *testing.T, token string) *Client {
	t.Helper()
	opts := engine.DefaultOptions(t.TempDir())
	opts.AutoSaveInterval = 0
	eng, err := engine.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	srv := server.NewServer(eng, "", token)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		eng.Close()
	})

	addr := ts.Listener.Addr().(*net.TCPAddr)
	return New(addr.IP.String(), addr.Port, token)
}

func TestClientIntegration(t *testing.T) {
	client := startServer(t, "secret")
	rng := rand.New(rand.NewSource(21))

	pages := map[string][]Point{
		"page-a": randomPoints(rng, 20),
		"page-b": randomPoints(rng, 20),
		"page-c": randomPoints(rng, 20),
	}

	t.Run("A - Learn and Register", func(t *testing.T) {
		if err := client.Learn([][]Point{pages["page-a"], pages["page-b"], pages["page-c"]}); err != nil {
			t.Fatalf("Learn failed: %v", err)
		}
		for _, name := range []string{"page-a", "page-b", "page-c"} {
			info, err := client.Register(name, pages[name])
			if err != nil {
				t.Fatalf("Register %s failed: %v", name, err)
			}
			if info.Name != name || info.Landmarks != 20 || info.Features == 0 {
				t.Errorf("unexpected info %+v", info)
			}
		}
		t.Log(" -> Register OK")
	})

	t.Run("B - Introspection", func(t *testing.T) {
		docs, err := client.Documents("")
		if err != nil {
			t.Fatalf("Documents failed: %v", err)
		}
		if len(docs) != 3 || docs[0].Name != "page-a" || docs[2].Name != "page-c" {
			t.Errorf("unexpected documents %+v", docs)
		}

		doc, err := client.Document("page-b")
		if err != nil {
			t.Fatalf("Document failed: %v", err)
		}
		if len(doc.Points) != 20 || doc.Points[3] != pages["page-b"][3] {
			t.Errorf("landmarks not returned as registered")
		}

		st, err := client.Stats()
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if st.Documents != 3 || st.Dirty == 0 {
			t.Errorf("unexpected stats %+v", st)
		}
	})

	t.Run("C - Lookup", func(t *testing.T) {
		matches, err := client.Lookup(pages["page-c"], 0)
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if len(matches) == 0 || matches[0].Document.Name != "page-c" {
			t.Fatalf("expected page-c first, got %+v", matches)
		}
		if matches[0].SeenLandmarks < 15 {
			t.Errorf("expected most landmarks seen, got %d", matches[0].SeenLandmarks)
		}

		batch, err := client.LookupBatch([][]Point{pages["page-b"], pages["page-a"]}, 0)
		if err != nil {
			t.Fatalf("LookupBatch failed: %v", err)
		}
		if len(batch) != 2 || batch[0][0].Document.Name != "page-b" || batch[1][0].Document.Name != "page-a" {
			t.Errorf("unexpected batch results")
		}
	})

	t.Run("D - Errors", func(t *testing.T) {
		_, err := client.Register("page-a", pages["page-a"])
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
			t.Errorf("expected 409 APIError, got %v", err)
		}

		_, err = client.Document("missing")
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 APIError, got %v", err)
		}

		unauthorized := &Client{baseURL: client.baseURL, httpClient: client.httpClient}
		_, err = unauthorized.Documents("")
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401 APIError, got %v", err)
		}
	})

	t.Run("E - System", func(t *testing.T) {
		if err := client.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		st, err := client.Stats()
		if err != nil {
			t.Fatal(err)
		}
		if st.Dirty != 0 {
			t.Errorf("expected clean state after save, got %d", st.Dirty)
		}

		if err := client.Reset(); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		docs, err := client.Documents("")
		if err != nil {
			t.Fatal(err)
		}
		if len(docs) != 0 {
			t.Errorf("expected no documents after reset, got %d", len(docs))
		}
	})
}
