// CLAUDE:SUMMARY Registers all sentinelle MCP tools — search, events, rules, alerts, escalation, analytics, stats.
package sentinelle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/sentinelle/internal/store"
	"github.com/hazyhaar/sentinelle/kit"
)

// RegisterMCP registers sentinelle tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerSearchTool(srv)
	s.registerRebuildEventsTool(srv)
	s.registerListEventsTool(srv)
	s.registerAddRuleTool(srv)
	s.registerListRulesTool(srv)
	s.registerEnableRuleTool(srv)
	s.registerEvaluateTool(srv)
	s.registerListAlertsTool(srv)
	s.registerAlertActionTool(srv)
	s.registerLabelAlertTool(srv)
	s.registerEscalateTool(srv)
	s.registerBacktestTool(srv)
	s.registerEntityGraphTool(srv)
	s.registerWatchlistTool(srv)
	s.registerStatsTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// --- search ---

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Service) registerSearchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_search",
		Description: "Full-text search over ingested documents and clustered events. Returns ranked hits with snippets.",
		InputSchema: inputSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "FTS5 search query"},
			"limit": map[string]any{"type": "integer", "description": "Max results (default 20)"},
		}, []string{"query"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*searchRequest)
		return s.Search(ctx, r.Query, r.Limit)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[searchRequest])
}

// decodeJSON is the common decode path: unmarshal MCP arguments into T.
func decodeJSON[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

// --- rebuild_events ---

func (s *Service) registerRebuildEventsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_rebuild_events",
		Description: "Re-cluster recent documents into temporal events. Idempotent: re-running over the same documents creates no duplicates.",
		InputSchema: inputSchema(map[string]any{
			"days_back": map[string]any{"type": "integer", "description": "Clustering window in days (default from config)"},
		}, nil),
	}

	type rebuildReq struct {
		DaysBack int `json:"days_back"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*rebuildReq)
		created, err := s.RebuildEvents(ctx, r.DaysBack)
		if err != nil {
			return nil, err
		}
		return map[string]int{"events_created": created}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[rebuildReq])
}

// --- list_events ---

func (s *Service) registerListEventsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_list_events",
		Description: "List recent events with their sentiment, volume and novelty scores, newest first.",
		InputSchema: inputSchema(map[string]any{
			"days_back": map[string]any{"type": "integer", "description": "Window in days (default from config)"},
			"limit":     map[string]any{"type": "integer", "description": "Max events (default 200)"},
		}, nil),
	}

	type listReq struct {
		DaysBack int `json:"days_back"`
		Limit    int `json:"limit"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listReq)
		return s.RecentEvents(ctx, r.DaysBack, r.Limit)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[listReq])
}

// --- add_rule ---

type addRuleRequest struct {
	Name        string          `json:"name"`
	Rule        json.RawMessage `json:"rule"`
	Schedule    string          `json:"schedule,omitempty"`
	Escalation  json.RawMessage `json:"escalation,omitempty"`
	WatchlistID string          `json:"watchlist_id,omitempty"`
}

func (s *Service) registerAddRuleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_add_rule",
		Description: "Add an alert rule. The rule is a condition tree (and/or/not/xor over keyword, entity, score and time predicates); unknown condition types never match.",
		InputSchema: inputSchema(map[string]any{
			"name":         map[string]any{"type": "string", "description": "Human-readable rule name"},
			"rule":         map[string]any{"type": "object", "description": "Rule expression: {logic: {operator, conditions}} or flat {any: [...], all: [...]}"},
			"schedule":     map[string]any{"type": "string", "description": "Optional cron expression or Go duration; empty runs on every evaluation tick"},
			"escalation":   map[string]any{"type": "object", "description": "Escalation policy: {levels: [{delay_minutes, channels, ...}]}"},
			"watchlist_id": map[string]any{"type": "string", "description": "Optional watchlist this rule belongs to"},
		}, []string{"name", "rule"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*addRuleRequest)
		rule := &store.AlertRule{
			Name:           r.Name,
			Enabled:        true,
			WatchlistID:    r.WatchlistID,
			RuleJSON:       string(r.Rule),
			Schedule:       r.Schedule,
			EscalationJSON: string(r.Escalation),
		}
		if err := s.AddRule(ctx, rule); err != nil {
			return nil, err
		}
		return rule, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[addRuleRequest])
}

// --- list_rules ---

func (s *Service) registerListRulesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_list_rules",
		Description: "List alert rules.",
		InputSchema: inputSchema(map[string]any{
			"enabled_only": map[string]any{"type": "boolean", "description": "Only show enabled rules (default: false)"},
		}, nil),
	}

	type listReq struct {
		EnabledOnly bool `json:"enabled_only"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listReq)
		return s.ListRules(ctx, r.EnabledOnly)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[listReq])
}

// --- enable_rule ---

func (s *Service) registerEnableRuleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_enable_rule",
		Description: "Enable or disable an alert rule.",
		InputSchema: inputSchema(map[string]any{
			"rule_id": map[string]any{"type": "string", "description": "Rule ID"},
			"enabled": map[string]any{"type": "boolean", "description": "New enabled state"},
		}, []string{"rule_id", "enabled"}),
	}

	type enableReq struct {
		RuleID  string `json:"rule_id"`
		Enabled bool   `json:"enabled"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*enableReq)
		if err := s.SetRuleEnabled(ctx, r.RuleID, r.Enabled); err != nil {
			return nil, err
		}
		return map[string]any{"rule_id": r.RuleID, "enabled": r.Enabled}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[enableReq])
}

// --- evaluate ---

func (s *Service) registerEvaluateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_evaluate",
		Description: "Run one rule evaluation pass immediately. Returns the alerts created (deduplicated matches create none).",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		created, err := s.EvaluateNow(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"alerts_created": len(created), "alerts": created}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- list_alerts ---

func (s *Service) registerListAlertsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_list_alerts",
		Description: "List alerts, newest first, optionally filtered by status.",
		InputSchema: inputSchema(map[string]any{
			"status": map[string]any{"type": "string", "enum": []any{"new", "ack", "snoozed", "resolved"}, "description": "Filter by status"},
			"limit":  map[string]any{"type": "integer", "description": "Max alerts (default 100)"},
		}, nil),
	}

	type listReq struct {
		Status string `json:"status"`
		Limit  int    `json:"limit"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listReq)
		return s.ListAlerts(ctx, r.Status, r.Limit)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[listReq])
}

// --- alert_action ---

func (s *Service) registerAlertActionTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_alert_action",
		Description: "Change an alert's status: ack (new only), snooze (new/ack, duration clamped to 1m..7d), resolve (terminal).",
		InputSchema: inputSchema(map[string]any{
			"alert_id":       map[string]any{"type": "string", "description": "Alert ID"},
			"action":         map[string]any{"type": "string", "enum": []any{"ack", "snooze", "resolve"}, "description": "Status transition"},
			"snooze_minutes": map[string]any{"type": "integer", "description": "Snooze duration in minutes (snooze only)"},
		}, []string{"alert_id", "action"}),
	}

	type actionReq struct {
		AlertID       string `json:"alert_id"`
		Action        string `json:"action"`
		SnoozeMinutes int    `json:"snooze_minutes"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*actionReq)
		var err error
		switch r.Action {
		case "ack":
			err = s.AcknowledgeAlert(ctx, r.AlertID)
		case "snooze":
			err = s.SnoozeAlert(ctx, r.AlertID, time.Duration(r.SnoozeMinutes)*time.Minute)
		case "resolve":
			err = s.ResolveAlert(ctx, r.AlertID)
		default:
			return nil, ErrInvalidInput
		}
		if err != nil {
			return nil, err
		}
		return map[string]string{"alert_id": r.AlertID, "action": r.Action}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[actionReq])
}

// --- label_alert ---

func (s *Service) registerLabelAlertTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_label_alert",
		Description: "Label an alert helpful (+1) or unhelpful (-1) for backtesting. Latest label wins.",
		InputSchema: inputSchema(map[string]any{
			"alert_id": map[string]any{"type": "string", "description": "Alert ID"},
			"label":    map[string]any{"type": "integer", "enum": []any{1, -1}, "description": "+1 helpful, -1 unhelpful"},
			"note":     map[string]any{"type": "string", "description": "Optional free-text note"},
		}, []string{"alert_id", "label"}),
	}

	type labelReq struct {
		AlertID string `json:"alert_id"`
		Label   int    `json:"label"`
		Note    string `json:"note"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*labelReq)
		if err := s.LabelAlert(ctx, r.AlertID, r.Label, r.Note); err != nil {
			return nil, err
		}
		return map[string]any{"alert_id": r.AlertID, "label": r.Label}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[labelReq])
}

// --- escalate ---

func (s *Service) registerEscalateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_escalate",
		Description: "Manually dispatch one escalation level of an alert, bypassing its delay. Already-attempted channels are skipped.",
		InputSchema: inputSchema(map[string]any{
			"alert_id": map[string]any{"type": "string", "description": "Alert ID"},
			"level":    map[string]any{"type": "integer", "description": "1-based escalation level"},
		}, []string{"alert_id", "level"}),
	}

	type escReq struct {
		AlertID string `json:"alert_id"`
		Level   int    `json:"level"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*escReq)
		if err := s.TriggerEscalationLevel(ctx, r.AlertID, r.Level); err != nil {
			return nil, err
		}
		return map[string]any{"alert_id": r.AlertID, "level": r.Level, "status": "dispatched"}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[escReq])
}

// --- backtest ---

func (s *Service) registerBacktestTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_backtest",
		Description: "Summarise alert outcomes in a time range: totals by status, helpful/unhelpful labels, per-rule breakdowns.",
		InputSchema: inputSchema(map[string]any{
			"from_ts": map[string]any{"type": "integer", "description": "Range start, Unix milliseconds"},
			"to_ts":   map[string]any{"type": "integer", "description": "Range end, Unix milliseconds"},
		}, []string{"from_ts", "to_ts"}),
	}

	type btReq struct {
		FromTs int64 `json:"from_ts"`
		ToTs   int64 `json:"to_ts"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*btReq)
		return s.Backtest(ctx, r.FromTs, r.ToTs)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[btReq])
}

// --- entity_graph ---

func (s *Service) registerEntityGraphTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_entity_graph",
		Description: "Build the entity co-mention graph over recent documents: top entities as nodes, shared-document pairs as weighted edges.",
		InputSchema: inputSchema(map[string]any{
			"days_back": map[string]any{"type": "integer", "description": "Document window in days (default 30)"},
			"max_nodes": map[string]any{"type": "integer", "description": "Max nodes (default 50)"},
			"max_edges": map[string]any{"type": "integer", "description": "Max edges (default 200)"},
		}, nil),
	}

	type graphReq struct {
		DaysBack int `json:"days_back"`
		MaxNodes int `json:"max_nodes"`
		MaxEdges int `json:"max_edges"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*graphReq)
		return s.EntityGraph(ctx, r.DaysBack, r.MaxNodes, r.MaxEdges)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[graphReq])
}

// --- watchlist ---

func (s *Service) registerWatchlistTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_watchlist",
		Description: "Manage watchlists and their items: add, list, delete, add_item, list_items, delete_item.",
		InputSchema: inputSchema(map[string]any{
			"action":       map[string]any{"type": "string", "enum": []any{"add", "list", "delete", "add_item", "list_items", "delete_item"}, "description": "Operation"},
			"watchlist_id": map[string]any{"type": "string", "description": "Watchlist ID (delete, add_item, list_items)"},
			"item_id":      map[string]any{"type": "string", "description": "Item ID (delete_item)"},
			"name":         map[string]any{"type": "string", "description": "Watchlist name (add)"},
			"description":  map[string]any{"type": "string", "description": "Watchlist description (add)"},
			"item_type":    map[string]any{"type": "string", "enum": []any{"entity", "keyword", "domain", "source"}, "description": "Item kind (add_item)"},
			"value":        map[string]any{"type": "string", "description": "Item value, e.g. an entity name (add_item)"},
			"weight":       map[string]any{"type": "number", "description": "Item weight, default 1.0 (add_item)"},
		}, []string{"action"}),
	}

	type wlReq struct {
		Action      string  `json:"action"`
		WatchlistID string  `json:"watchlist_id"`
		ItemID      string  `json:"item_id"`
		Name        string  `json:"name"`
		Description string  `json:"description"`
		ItemType    string  `json:"item_type"`
		Value       string  `json:"value"`
		Weight      float64 `json:"weight"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*wlReq)
		switch r.Action {
		case "add":
			wl := &store.Watchlist{Name: r.Name, Description: r.Description}
			if err := s.AddWatchlist(ctx, wl); err != nil {
				return nil, err
			}
			return wl, nil
		case "list":
			return s.ListWatchlists(ctx)
		case "delete":
			if err := s.DeleteWatchlist(ctx, r.WatchlistID); err != nil {
				return nil, err
			}
			return map[string]string{"deleted": r.WatchlistID}, nil
		case "add_item":
			weight := r.Weight
			if weight == 0 {
				weight = 1
			}
			item := &store.WatchlistItem{
				WatchlistID: r.WatchlistID,
				ItemType:    r.ItemType,
				Value:       r.Value,
				Weight:      weight,
				Enabled:     true,
			}
			if err := s.AddWatchlistItem(ctx, item); err != nil {
				return nil, err
			}
			return item, nil
		case "list_items":
			return s.ListWatchlistItems(ctx, r.WatchlistID, false)
		case "delete_item":
			if err := s.DeleteWatchlistItem(ctx, r.ItemID); err != nil {
				return nil, err
			}
			return map[string]string{"deleted": r.ItemID}, nil
		default:
			return nil, ErrInvalidInput
		}
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[wlReq])
}

// --- stats ---

func (s *Service) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sentinelle_stats",
		Description: "Get sentinelle statistics: counts of documents, events, evidence links, rules, alerts, and escalations.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Stats(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
