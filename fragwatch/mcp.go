package fragwatch

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/kit"
)

// RegisterMCP registers the fragwatch tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerPlayerStatsTool(srv)
	s.registerGroupStatsTool(srv)
	s.registerRankingsTool(srv)
	s.registerProgramTool(srv)
	s.registerCancelTool(srv)
	s.registerPlayersTool(srv)
}

func (s *Service) mcpTool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (any, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Chain(kit.Logging(s.logger, tool.Name))(endpoint), decode)
}

var windowProperty = map[string]any{
	"type":        "string",
	"description": "today, yesterday, rolling7, rolling30, previous_week or previous_month (default today)",
}

// --- player_stats ---

type playerStatsRequest struct {
	GroupID  string `json:"group_id,omitempty"`
	Username string `json:"username"`
	Platform string `json:"platform,omitempty"`
	Window   string `json:"window,omitempty"`
}

func (s *Service) registerPlayerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "fragwatch_player_stats",
		Description: "Fetch one player's match stats and aggregate them over a window.",
		InputSchema: kit.InputSchema(map[string]any{
			"username": map[string]any{"type": "string", "description": "Player handle on the stats site"},
			"group_id": map[string]any{"type": "string", "description": "Group the player is tracked in (selects the stored platform)"},
			"platform": map[string]any{"type": "string", "description": "steam, xbl, psn or epic"},
			"window":   windowProperty,
		}, []string{"username"}),
	}
	s.mcpTool(srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*playerStatsRequest)
		k, err := ParseWindow(r.Window)
		if err != nil {
			return nil, err
		}
		return s.CollectForPlayer(ctx, PlayerRef{GroupID: r.GroupID, Username: r.Username, Platform: r.Platform}, k)
	}, kit.DecodeJSON[playerStatsRequest]())
}

// --- group_stats / rankings ---

type groupWindowRequest struct {
	GroupID string `json:"group_id"`
	Window  string `json:"window,omitempty"`
}

func (s *Service) registerGroupStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "fragwatch_group_stats",
		Description: "Collect every tracked player of a group over a window. Failed players are listed with a reason.",
		InputSchema: kit.InputSchema(map[string]any{
			"group_id": map[string]any{"type": "string"},
			"window":   windowProperty,
		}, []string{"group_id"}),
	}
	s.mcpTool(srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*groupWindowRequest)
		k, err := ParseWindow(r.Window)
		if err != nil {
			return nil, err
		}
		return s.CollectForGroup(ctx, r.GroupID, k)
	}, kit.DecodeJSON[groupWindowRequest]())
}

func (s *Service) registerRankingsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "fragwatch_rankings",
		Description: "Rank a group's players per metric (kills, deaths, kd, headshot_pct, wins) over a window.",
		InputSchema: kit.InputSchema(map[string]any{
			"group_id": map[string]any{"type": "string"},
			"window":   windowProperty,
		}, []string{"group_id"}),
	}
	s.mcpTool(srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*groupWindowRequest)
		k, err := ParseWindow(r.Window)
		if err != nil {
			return nil, err
		}
		return s.Rankings(ctx, r.GroupID, k)
	}, kit.DecodeJSON[groupWindowRequest]())
}

// --- program / cancel ---

type programRequest struct {
	GroupID    string `json:"group_id"`
	ChannelRef string `json:"channel_ref"`
	TimeOfDay  string `json:"time_of_day"`
}

func (s *Service) registerProgramTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "fragwatch_program",
		Description: "Schedule daily, weekly (Monday) and monthly (1st) ranking deliveries for a group at HH:mm.",
		InputSchema: kit.InputSchema(map[string]any{
			"group_id":    map[string]any{"type": "string"},
			"channel_ref": map[string]any{"type": "string", "description": "Destination channel ID"},
			"time_of_day": map[string]any{"type": "string", "description": "24-hour HH:mm, e.g. 21:00"},
		}, []string{"group_id", "channel_ref", "time_of_day"}),
	}
	s.mcpTool(srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*programRequest)
		if _, err := s.Program(ctx, r.GroupID, r.ChannelRef, r.TimeOfDay); err != nil {
			return nil, err
		}
		return s.Schedule(ctx, r.GroupID)
	}, kit.DecodeJSON[programRequest]())
}

type groupRequest struct {
	GroupID string `json:"group_id"`
}

func (s *Service) registerCancelTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "fragwatch_cancel",
		Description: "Cancel a group's scheduled deliveries. Safe to call when nothing is scheduled.",
		InputSchema: kit.InputSchema(map[string]any{
			"group_id": map[string]any{"type": "string"},
		}, []string{"group_id"}),
	}
	s.mcpTool(srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*groupRequest)
		if err := s.Cancel(ctx, r.GroupID); err != nil {
			return nil, err
		}
		return map[string]any{"group_id": r.GroupID, "state": "unscheduled"}, nil
	}, kit.DecodeJSON[groupRequest]())
}

// --- players ---

type playersRequest struct {
	GroupID  string `json:"group_id"`
	Action   string `json:"action,omitempty"`
	Username string `json:"username,omitempty"`
	Platform string `json:"platform,omitempty"`
}

func (s *Service) registerPlayersTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "fragwatch_players",
		Description: "List, add or remove a group's tracked players.",
		InputSchema: kit.InputSchema(map[string]any{
			"group_id": map[string]any{"type": "string"},
			"action":   map[string]any{"type": "string", "enum": []any{"list", "add", "remove"}, "description": "Default list"},
			"username": map[string]any{"type": "string"},
			"platform": map[string]any{"type": "string"},
		}, []string{"group_id"}),
	}
	s.mcpTool(srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*playersRequest)
		switch r.Action {
		case "", "list":
			players, err := s.ListPlayers(ctx, r.GroupID)
			if players == nil {
				players = []Player{}
			}
			return players, err
		case "add":
			return s.AddPlayer(ctx, r.GroupID, r.Username, r.Platform)
		case "remove":
			if err := s.RemovePlayer(ctx, r.GroupID, r.Username); err != nil {
				return nil, err
			}
			return map[string]string{"removed": r.Username}, nil
		}
		return nil, fmt.Errorf("unknown action %q", r.Action)
	}, kit.DecodeJSON[playersRequest]())
}
