package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/llahdb/pkg/core/llah"
	"github.com/sanonone/llahdb/pkg/engine"
)

type Service struct {
	engine *engine.Engine
}

func NewService(eng *engine.Engine) *Service {
	return &Service{engine: eng}
}

func toPoints(in []PointArg) []llah.Point {
	out := make([]llah.Point, len(in))
	for i, p := range in {
		out[i] = llah.Point{X: p.X, Y: p.Y}
	}
	return out
}

// --- Tool Handlers ---

func (s *Service) RegisterDocument(ctx context.Context, req *mcp.CallToolRequest, args RegisterDocumentArgs) (*mcp.CallToolResult, RegisterDocumentResult, error) {
	info, err := s.engine.Register(args.Name, toPoints(args.Points))
	if err != nil {
		return nil, RegisterDocumentResult{}, err
	}
	return nil, RegisterDocumentResult{
		ID:        info.ID,
		Name:      info.Name,
		Landmarks: info.Landmarks,
		Features:  info.Features,
	}, nil
}

func (s *Service) LookupPoints(ctx context.Context, req *mcp.CallToolRequest, args LookupPointsArgs) (*mcp.CallToolResult, LookupPointsResult, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = 5
	}

	matches, err := s.engine.Lookup(toPoints(args.Points), 0)
	if err != nil {
		return nil, LookupPointsResult{}, err
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]string, 0, len(matches))
	for _, m := range matches {
		results = append(results, fmt.Sprintf("[%s] hits=%d score=%.3f landmarks=%d/%d",
			m.Document.Name, m.Hits, m.Score, m.SeenLandmarks, m.Document.Landmarks))
	}
	return nil, LookupPointsResult{Results: results}, nil
}

func (s *Service) ListDocuments(ctx context.Context, req *mcp.CallToolRequest, args ListDocumentsArgs) (*mcp.CallToolResult, ListDocumentsResult, error) {
	docs := s.engine.Documents(args.Prefix)
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = fmt.Sprintf("%s (%d landmarks)", d.Name, d.Landmarks)
	}
	return nil, ListDocumentsResult{Documents: out}, nil
}
