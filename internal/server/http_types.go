package server

import (
	"github.com/sanonone/llahdb/pkg/core/llah"
	"github.com/sanonone/llahdb/pkg/engine"
)

// Point is the JSON form of a 2D point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LearnRequest defines the body for discretization learning.
type LearnRequest struct {
	PointSets [][]Point `json:"point_sets"`
}

// RegisterRequest defines the body for document registration.
type RegisterRequest struct {
	Name   string  `json:"name,omitempty"`
	Points []Point `json:"points"`
}

// LookupRequest defines the body for a single lookup.
type LookupRequest struct {
	Points          []Point `json:"points"`
	MaxHitsPerPoint uint32  `json:"max_hits_per_point,omitempty"`
}

// BatchLookupRequest defines the body for several lookups at once.
type BatchLookupRequest struct {
	Queries         [][]Point `json:"queries"`
	MaxHitsPerPoint uint32    `json:"max_hits_per_point,omitempty"`
}

// Correspondence links a landmark to the observed point matched to it.
type Correspondence struct {
	Landmark int32 `json:"landmark"`
	Location Point `json:"location"`
	Dot      int32 `json:"dot"`
}

// MatchResponse is one recognised document.
type MatchResponse struct {
	Document       engine.DocumentInfo `json:"document"`
	Hits           uint64              `json:"hits"`
	Score          float64             `json:"score"`
	SeenLandmarks  int                 `json:"seen_landmarks"`
	VotedLandmarks int                 `json:"voted_landmarks"`
	Matches        []Correspondence    `json:"matches"`
}

// LookupResponse lists the matches of one query, best first.
type LookupResponse struct {
	Results []MatchResponse `json:"results"`
}

// BatchLookupResponse holds one LookupResponse per query.
type BatchLookupResponse struct {
	Results []LookupResponse `json:"results"`
}

// DocumentResponse describes a document with its landmarks.
type DocumentResponse struct {
	engine.DocumentInfo
	Points []Point `json:"points"`
}

// DocumentsResponse lists documents ordered by name.
type DocumentsResponse struct {
	Documents []engine.DocumentInfo `json:"documents"`
}

func toPoints(in []Point) []llah.Point {
	out := make([]llah.Point, len(in))
	for i, p := range in {
		out[i] = llah.Point{X: p.X, Y: p.Y}
	}
	return out
}

func fromPoints(in []llah.Point) []Point {
	out := make([]Point, len(in))
	for i, p := range in {
		out[i] = Point{X: p.X, Y: p.Y}
	}
	return out
}

func toLookupResponse(matches []engine.Match) LookupResponse {
	resp := LookupResponse{Results: make([]MatchResponse, 0, len(matches))}
	for _, m := range matches {
		mr := MatchResponse{
			Document:       m.Document,
			Hits:           m.Hits,
			Score:          m.Score,
			SeenLandmarks:  m.SeenLandmarks,
			VotedLandmarks: m.VotedLandmarks,
			Matches:        make([]Correspondence, len(m.Matches)),
		}
		for i, c := range m.Matches {
			mr.Matches[i] = Correspondence{
				Landmark: c.Landmark,
				Location: Point{X: c.Location.X, Y: c.Location.Y},
				Dot:      c.Dot,
			}
		}
		resp.Results = append(resp.Results, mr)
	}
	return resp
}
