// Package assist exposes the session history to LLM assistants as an MCP
// server using the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk).
//
// Four tools are registered:
//   - "recent_sessions"    — list a user's latest analysis sessions.
//   - "stress_summary"     — daily stress averages over a trailing window.
//   - "suggest_activity"   — look up the calming activity for a stress score.
//   - "search_transcripts" — full-text search over stored transcripts.
//
// The server is normally run over stdio via [Server.Run]; tests connect an
// in-memory transport through [Server.Connect].
package assist

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/zenzone/internal/analysis"
	"github.com/MrWong99/zenzone/pkg/history"
)

// defaultListLimit bounds recent_sessions and search_transcripts results
// when the caller does not ask for a specific count.
const defaultListLimit = 10

// maxListLimit caps the number of sessions any single tool call returns.
const maxListLimit = 50

// defaultTrendDays is the stress_summary window when days is omitted.
const defaultTrendDays = 7

// Server wraps a [history.Store] behind an MCP server.
type Server struct {
	store history.Store
	mcp   *mcpsdk.Server
}

// New builds a Server with all tools registered. store must not be nil.
func New(store history.Store) *Server {
	s := &Server{
		store: store,
		mcp: mcpsdk.NewServer(
			&mcpsdk.Implementation{Name: "zenzone-assist", Version: "1.0.0"},
			nil,
		),
	}

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "recent_sessions",
		Description: "List the most recent voice analysis sessions, newest first. Each entry carries the stress score, detected emotion, transcript, and the activity that was suggested.",
	}, s.recentSessions)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "stress_summary",
		Description: "Summarise a user's stress over the last N days: per-day averages, the overall mean, and whether the trend is rising, falling, or steady.",
	}, s.stressSummary)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "suggest_activity",
		Description: "Return the calming activity recommended for a stress score between 0 and 100, or describe a known activity by its key (play_lofi, breathing, body_scan, nature_sounds).",
	}, s.suggestActivity)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "search_transcripts",
		Description: "Full-text search over stored session transcripts. Returns the matching sessions with their stress scores and emotions.",
	}, s.searchTranscripts)

	return s
}

// Run serves MCP over stdio until ctx is cancelled or the peer disconnects.
func (s *Server) Run(ctx context.Context) error {
	if err := s.mcp.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("assist: serve stdio: %w", err)
	}
	return nil
}

// Connect attaches the server to an arbitrary transport. Used by tests with
// the SDK's in-memory transport pair.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	sess, err := s.mcp.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("assist: connect: %w", err)
	}
	return sess, nil
}

// ─── recent_sessions ─────────────────────────────────────────────────────────

type recentSessionsArgs struct {
	// UserID filters to one user; empty returns sessions for all users.
	UserID string `json:"user_id,omitempty"`

	// Limit caps the number of sessions returned (default 10, max 50).
	Limit int `json:"limit,omitempty"`
}

// sessionSummary is the assistant-facing view of one stored session.
type sessionSummary struct {
	ID              int64   `json:"id"`
	UserID          string  `json:"user_id"`
	RecordedAt      string  `json:"recorded_at"`
	StressScore     float64 `json:"stress_score"`
	Emotion         string  `json:"emotion"`
	Transcript      string  `json:"transcript,omitempty"`
	SuggestedAction string  `json:"suggested_action,omitempty"`
}

type recentSessionsResult struct {
	Sessions []sessionSummary `json:"sessions"`
}

func (s *Server) recentSessions(ctx context.Context, _ *mcpsdk.CallToolRequest, args recentSessionsArgs) (*mcpsdk.CallToolResult, recentSessionsResult, error) {
	sessions, err := s.store.Recent(ctx, args.UserID, clampLimit(args.Limit))
	if err != nil {
		return nil, recentSessionsResult{}, fmt.Errorf("assist: recent_sessions: %w", err)
	}
	return nil, recentSessionsResult{Sessions: summarise(sessions)}, nil
}

// ─── stress_summary ──────────────────────────────────────────────────────────

type stressSummaryArgs struct {
	// UserID filters to one user; empty aggregates over all users.
	UserID string `json:"user_id,omitempty"`

	// Days is the trailing window length (default 7).
	Days int `json:"days,omitempty"`
}

type trendDay struct {
	Day       string  `json:"day"`
	AvgStress float64 `json:"avg_stress"`
	Sessions  int     `json:"sessions"`
}

type stressSummaryResult struct {
	Days      int        `json:"days"`
	Trend     []trendDay `json:"trend"`
	AvgStress float64    `json:"avg_stress"`

	// Direction is "rising", "falling", or "steady", comparing the first
	// and last day of the window.
	Direction string `json:"direction"`
}

func (s *Server) stressSummary(ctx context.Context, _ *mcpsdk.CallToolRequest, args stressSummaryArgs) (*mcpsdk.CallToolResult, stressSummaryResult, error) {
	days := args.Days
	if days <= 0 {
		days = defaultTrendDays
	}

	points, err := s.store.StressTrend(ctx, args.UserID, days)
	if err != nil {
		return nil, stressSummaryResult{}, fmt.Errorf("assist: stress_summary: %w", err)
	}

	res := stressSummaryResult{Days: days, Trend: make([]trendDay, 0, len(points))}
	var weighted float64
	var total int
	for _, p := range points {
		res.Trend = append(res.Trend, trendDay{
			Day:       p.Day.Format(time.DateOnly),
			AvgStress: p.AvgStress,
			Sessions:  p.Sessions,
		})
		weighted += p.AvgStress * float64(p.Sessions)
		total += p.Sessions
	}
	if total > 0 {
		res.AvgStress = weighted / float64(total)
	}
	res.Direction = trendDirection(points)

	return nil, res, nil
}

// trendDirection compares the first and last day of the window. Changes of
// five points or less count as steady.
func trendDirection(points []history.TrendPoint) string {
	if len(points) < 2 {
		return "steady"
	}
	delta := points[len(points)-1].AvgStress - points[0].AvgStress
	switch {
	case delta > 5:
		return "rising"
	case delta < -5:
		return "falling"
	default:
		return "steady"
	}
}

// ─── suggest_activity ────────────────────────────────────────────────────────

type suggestActivityArgs struct {
	// StressScore selects the suggestion band for a score in [0,100].
	StressScore *float64 `json:"stress_score,omitempty"`

	// Activity looks up a suggestion by its key instead of by score.
	Activity string `json:"activity,omitempty"`
}

type suggestActivityResult struct {
	Title       string `json:"title"`
	Activity    string `json:"activity"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

func (s *Server) suggestActivity(_ context.Context, _ *mcpsdk.CallToolRequest, args suggestActivityArgs) (*mcpsdk.CallToolResult, suggestActivityResult, error) {
	var sug analysis.Suggestion
	switch {
	case args.Activity != "":
		var ok bool
		sug, ok = analysis.SuggestForActivity(args.Activity)
		if !ok {
			return nil, suggestActivityResult{}, fmt.Errorf("assist: suggest_activity: unknown activity %q", args.Activity)
		}
	case args.StressScore != nil:
		score := *args.StressScore
		if score < 0 || score > 100 {
			return nil, suggestActivityResult{}, fmt.Errorf("assist: suggest_activity: stress_score %.1f out of range [0,100]", score)
		}
		sug = analysis.Suggest(score)
	default:
		return nil, suggestActivityResult{}, fmt.Errorf("assist: suggest_activity: provide either stress_score or activity")
	}

	return nil, suggestActivityResult{
		Title:       sug.Title,
		Activity:    sug.Activity,
		Action:      sug.Action,
		Description: sug.Description,
	}, nil
}

// ─── search_transcripts ──────────────────────────────────────────────────────

type searchTranscriptsArgs struct {
	// Query is the full-text search query; required.
	Query string `json:"query"`

	// Limit caps the number of matches returned (default 10, max 50).
	Limit int `json:"limit,omitempty"`
}

func (s *Server) searchTranscripts(ctx context.Context, _ *mcpsdk.CallToolRequest, args searchTranscriptsArgs) (*mcpsdk.CallToolResult, recentSessionsResult, error) {
	if args.Query == "" {
		return nil, recentSessionsResult{}, fmt.Errorf("assist: search_transcripts: query must not be empty")
	}
	sessions, err := s.store.SearchTranscripts(ctx, args.Query, clampLimit(args.Limit))
	if err != nil {
		return nil, recentSessionsResult{}, fmt.Errorf("assist: search_transcripts: %w", err)
	}
	return nil, recentSessionsResult{Sessions: summarise(sessions)}, nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func summarise(sessions []history.Session) []sessionSummary {
	out := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionSummary{
			ID:              sess.ID,
			UserID:          sess.UserID,
			RecordedAt:      sess.RecordedAt.Format(time.RFC3339),
			StressScore:     sess.StressScore,
			Emotion:         sess.Emotion,
			Transcript:      sess.Transcript,
			SuggestedAction: sess.SuggestedAction,
		})
	}
	return out
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
