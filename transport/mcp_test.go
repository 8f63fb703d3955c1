package transport

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func mcpSession(t *testing.T, ctl Controller) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "regdetect-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	RegisterMCP(srv, NewCommands(ctl, "test", quiet()))

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	cs, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (map[string]any, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool %s: %v", name, err)
	}
	if res.IsError {
		return nil, true
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(res.Content[0].(*mcp.TextContent).Text), &out); err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return out, false
}

func TestMCP_Tools(t *testing.T) {
	ctl := &fakeController{}
	cs := mcpSession(t, ctl)

	if out, isErr := call(t, cs, "regdetect_ping", nil); isErr || out["status"] != "ok" {
		t.Errorf("ping: got %v", out)
	}
	if _, isErr := call(t, cs, "regdetect_get_result", nil); !isErr {
		t.Error("get_result without result: want tool error")
	}

	ctl.set(sample(), false)
	out, isErr := call(t, cs, "regdetect_get_result", nil)
	if isErr || out["id"] != "det_1" {
		t.Errorf("get_result: got %v", out)
	}
	if out, isErr := call(t, cs, "regdetect_get_status", nil); isErr || out["has_result"] != true {
		t.Errorf("get_status: got %v", out)
	}
	if out, isErr := call(t, cs, "regdetect_trigger", nil); isErr || out["triggered"] != true {
		t.Errorf("trigger: got %v", out)
	}
	if out, isErr := call(t, cs, "regdetect_confirm", map[string]any{"confirmed": false}); isErr || out["confirmed"] != false {
		t.Errorf("confirm: got %v", out)
	}
	if n, got := ctl.calls(); n != 1 || len(got) != 1 || got[0] {
		t.Errorf("controller: triggered=%d confirmed=%v", n, got)
	}
}

func TestMCP_ListTools(t *testing.T) {
	cs := mcpSession(t, &fakeController{})
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"regdetect_ping": true, "regdetect_get_result": true, "regdetect_get_status": true,
		"regdetect_trigger": true, "regdetect_confirm": true,
	}
	for _, tool := range res.Tools {
		delete(want, tool.Name)
	}
	if len(want) != 0 {
		t.Errorf("missing tools: %v", want)
	}
}
