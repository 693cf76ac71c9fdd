package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/llahdb/pkg/engine"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

func NewMCPServer(eng *engine.Engine) *mcp.Server {
	service := NewService(eng)

	s := mcp.NewServer(&mcp.Implementation{
		Name:    "llahdb",
		Version: Version,
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "register_document",
		Description: "Register a point arrangement (e.g. the dots printed on a page) as a recognisable document.",
	}, service.RegisterDocument)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "lookup_points",
		Description: "Recognise which registered documents a set of observed points belongs to, best first.",
	}, service.LookupPoints)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_documents",
		Description: "List registered documents by name.",
	}, service.ListDocuments)

	return s
}
