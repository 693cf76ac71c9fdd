package mcp

// --- Tool Arguments ---

// PointArg is a 2D point as seen by the model.
type PointArg struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type RegisterDocumentArgs struct {
	Name   string     `json:"name,omitempty" jsonschema:"Unique document name. A random one is generated when empty"`
	Points []PointArg `json:"points" jsonschema:"Landmark coordinates of the document, at least neighbors+1 of them"`
}

type RegisterDocumentResult struct {
	ID        int32  `json:"id"`
	Name      string `json:"name"`
	Landmarks int    `json:"landmarks"`
	Features  int    `json:"features"`
}

type LookupPointsArgs struct {
	Points []PointArg `json:"points" jsonschema:"Observed point coordinates to recognise"`
	Limit  int        `json:"limit,omitempty" jsonschema:"Max number of documents to report (default 5)"`
}

type LookupPointsResult struct {
	Results []string `json:"results"` // Formatted strings for the LLM
}

type ListDocumentsArgs struct {
	Prefix string `json:"prefix,omitempty" jsonschema:"Only list documents whose name starts with this prefix"`
}

type ListDocumentsResult struct {
	Documents []string `json:"documents"`
}
