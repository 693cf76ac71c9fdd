package mcp

import (
	"context"
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/llahdb/pkg/engine"
)

func randomArgs(rng *rand.Rand, n int) []PointArg {
	points := make([]PointArg, 0, n)
	for len(points) < n {
		p := PointArg{X: rng.Float64() * 10, Y: rng.Float64() * 10}
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

func newTestService(t *testing.T) *Service {
	t.Helper()
	opts := engine.DefaultOptions("")
	opts.AutoSaveInterval = 0
	eng, err := engine.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close() })
	return NewService(eng)
}

func TestServiceTools(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(11))

	pages := map[string][]PointArg{
		"page-1": randomArgs(rng, 18),
		"page-2": randomArgs(rng, 18),
	}
	for _, name := range []string{"page-1", "page-2"} {
		_, res, err := s.RegisterDocument(ctx, nil, RegisterDocumentArgs{Name: name, Points: pages[name]})
		if err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		if res.Name != name || res.Landmarks != 18 {
			t.Errorf("unexpected result %+v", res)
		}
	}

	_, list, err := s.ListDocuments(ctx, nil, ListDocumentsArgs{Prefix: "page-"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Documents) != 2 || !strings.HasPrefix(list.Documents[0], "page-1") {
		t.Errorf("unexpected listing %v", list.Documents)
	}

	_, found, err := s.LookupPoints(ctx, nil, LookupPointsArgs{Points: pages["page-2"], Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(found.Results) != 1 || !strings.HasPrefix(found.Results[0], "[page-2]") {
		t.Errorf("expected page-2, got %v", found.Results)
	}

	if _, _, err := s.RegisterDocument(ctx, nil, RegisterDocumentArgs{Points: pages["page-1"][:3]}); err == nil {
		t.Error("expected an error for too few points")
	}
}

func TestServerListsTools(t *testing.T) {
	opts := engine.DefaultOptions("")
	opts.AutoSaveInterval = 0
	eng, err := engine.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	server := NewMCPServer(eng)
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	want := []string{"list_documents", "lookup_points", "register_document"}
	if !slices.Equal(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}
}
