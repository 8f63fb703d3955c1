package transport

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/regdetect/kit"
)

// RegisterMCP registers the command surface as MCP tools.
func RegisterMCP(srv *mcp.Server, cmds *Commands) {
	none := kit.DecodeArgs[struct{}]()

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "regdetect_ping",
		Description: "Liveness probe.",
		InputSchema: kit.InputSchema(nil),
	}, cmds.Ping(), none)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "regdetect_get_result",
		Description: "Current detection result for the watched page: business-registration verdict, confidence breakdown, classified fields.",
		InputSchema: kit.InputSchema(nil),
	}, cmds.GetResult(), none)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "regdetect_get_status",
		Description: "Lifecycle state, attempt counter and last error.",
		InputSchema: kit.InputSchema(nil),
	}, cmds.GetStatus(), none)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "regdetect_trigger",
		Description: "Force a fresh detection pass.",
		InputSchema: kit.InputSchema(nil),
	}, cmds.Trigger(), none)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "regdetect_confirm",
		Description: "Record whether the current result really is a business-registration form.",
		InputSchema: kit.InputSchema(map[string]any{
			"confirmed": map[string]any{"type": "boolean", "description": "true if the page is a registration form (default true)"},
		}),
	}, cmds.Confirm(), kit.DecodeArgs[ConfirmRequest]())
}
