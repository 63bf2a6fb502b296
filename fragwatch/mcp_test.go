package fragwatch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "fragwatch-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text, result.IsError
}

func TestMCP_PlayersAndRankings(t *testing.T) {
	// WHAT: Players added over MCP are collected and ranked by the rankings tool.
	// WHY: Agents drive the whole flow through tools alone.
	f := newFakeFetcher()
	f.pages["amy"] = profilePage(30, 10, 50)
	f.errs["zed"] = blockedErr("HTTP 429")
	session := mcpSession(t, newTestService(t, f, nil))

	for _, u := range []string{"amy", "zed"} {
		if text, isErr := callTool(t, session, "fragwatch_players", map[string]any{
			"group_id": "g1", "action": "add", "username": u,
		}); isErr {
			t.Fatalf("add %s: %s", u, text)
		}
	}
	text, _ := callTool(t, session, "fragwatch_players", map[string]any{"group_id": "g1"})
	var players []Player
	if err := json.Unmarshal([]byte(text), &players); err != nil || len(players) != 2 {
		t.Fatalf("list: %s", text)
	}

	text, isErr := callTool(t, session, "fragwatch_rankings", map[string]any{"group_id": "g1", "window": "today"})
	if isErr {
		t.Fatalf("rankings: %s", text)
	}
	var rk RankingReport
	if err := json.Unmarshal([]byte(text), &rk); err != nil {
		t.Fatal(err)
	}
	if rk.Rankings.Considered != 1 || len(rk.Failures) != 1 || rk.Failures[0].Player != "zed" {
		t.Errorf("rankings = %+v", rk)
	}
}

func TestMCP_PlayerStats(t *testing.T) {
	f := newFakeFetcher()
	f.pages["neo"] = profilePage(9, 3, 33)
	session := mcpSession(t, newTestService(t, f, nil))

	text, isErr := callTool(t, session, "fragwatch_player_stats", map[string]any{"username": "neo", "window": "7d"})
	if isErr {
		t.Fatalf("stats: %s", text)
	}
	var rep PlayerReport
	if err := json.Unmarshal([]byte(text), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Summary.Kills != 9 || rep.Window.Kind != Rolling7 {
		t.Errorf("report = %+v", rep)
	}
}

func TestMCP_ProgramAndCancel(t *testing.T) {
	// WHAT: Invalid times come back as tool errors; valid ones arm the group.
	// WHY: Tool errors let the agent correct its input instead of failing the session.
	session := mcpSession(t, newTestService(t, newFakeFetcher(), nil))

	text, isErr := callTool(t, session, "fragwatch_program", map[string]any{
		"group_id": "g1", "channel_ref": "c1", "time_of_day": "7pm",
	})
	if !isErr || !strings.Contains(text, "time_of_day") {
		t.Errorf("invalid time: isErr=%v %s", isErr, text)
	}

	text, isErr = callTool(t, session, "fragwatch_program", map[string]any{
		"group_id": "g1", "channel_ref": "c1", "time_of_day": "19:00",
	})
	if isErr || !strings.Contains(text, `"state":"scheduled"`) {
		t.Fatalf("program: %s", text)
	}
	text, isErr = callTool(t, session, "fragwatch_cancel", map[string]any{"group_id": "g1"})
	if isErr || !strings.Contains(text, "unscheduled") {
		t.Errorf("cancel: %s", text)
	}
}

func TestMCP_UnknownWindow(t *testing.T) {
	session := mcpSession(t, newTestService(t, newFakeFetcher(), nil))
	text, isErr := callTool(t, session, "fragwatch_group_stats", map[string]any{"group_id": "g1", "window": "fortnight"})
	if !isErr || !strings.Contains(text, "unknown kind") {
		t.Errorf("isErr=%v %s", isErr, text)
	}
}
