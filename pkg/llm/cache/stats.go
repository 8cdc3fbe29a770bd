package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/webtest/pkg/types"
)

// RoleStats aggregates the calls of one role.
type RoleStats struct {
	Role             string
	Calls            int
	CachedCalls      int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
}

// SessionStats summarizes the completion log of a session.
type SessionStats struct {
	Start     time.Time
	End       time.Time
	SessionID string
	Roles     []*RoleStats
	Total     RoleStats
	Latency   time.Duration
}

// SessionInfo is a row of the session listing.
type SessionInfo struct {
	Start       time.Time
	ID          string
	Calls       int
	TotalTokens int
}

// Stats aggregates a session's log per role. The result is nil when the
// session has no records.
func (s *Store) Stats(ctx context.Context, sessionID string) (*SessionStats, error) {
	records, err := s.Records(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	st := &SessionStats{SessionID: sessionID, Total: RoleStats{Role: "total"}}
	byRole := make(map[string]*RoleStats)
	for _, r := range records {
		rs, ok := byRole[r.Role]
		if !ok {
			rs = &RoleStats{Role: r.Role}
			byRole[r.Role] = rs
			st.Roles = append(st.Roles, rs)
		}
		cost := 0.0
		if !r.Cached {
			cost = EstimateCost(r.Model, &types.Usage{
				PromptTokens:     r.PromptTokens,
				CompletionTokens: r.CompletionTokens,
			})
		}
		for _, agg := range []*RoleStats{rs, &st.Total} {
			agg.Calls++
			if r.Cached {
				agg.CachedCalls++
			}
			agg.PromptTokens += r.PromptTokens
			agg.CompletionTokens += r.CompletionTokens
			agg.TotalTokens += r.TotalTokens
			agg.Cost += cost
		}
		st.Latency += r.Latency
		if st.Start.IsZero() || r.CreatedAt.Before(st.Start) {
			st.Start = r.CreatedAt
		}
		if r.CreatedAt.After(st.End) {
			st.End = r.CreatedAt
		}
	}
	return st, nil
}

// Sessions lists logged sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]*SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, MIN(created_at), COUNT(*), SUM(total_tokens)
		FROM completion_log
		GROUP BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionInfo
	for rows.Next() {
		var info SessionInfo
		var start int64
		if err := rows.Scan(&info.ID, &start, &info.Calls, &info.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.Start = time.UnixMilli(start)
		out = append(out, &info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.After(out[j].Start)
	})
	return out, nil
}

// price is USD per million tokens.
type price struct {
	input  float64
	output float64
}

// pricing is matched by longest model-name prefix.
var pricing = map[string]price{
	"gpt-4o-mini":       {0.15, 0.60},
	"gpt-4o":            {2.50, 10.00},
	"gpt-4.1-nano":      {0.10, 0.40},
	"gpt-4.1-mini":      {0.40, 1.60},
	"gpt-4.1":           {2.00, 8.00},
	"gpt-4-turbo":       {10.00, 30.00},
	"gpt-3.5-turbo":     {0.50, 1.50},
	"o3-mini":           {1.10, 4.40},
	"o4-mini":           {1.10, 4.40},
	"claude-3-5-haiku":  {0.80, 4.00},
	"claude-3-5-sonnet": {3.00, 15.00},
	"claude-3-7-sonnet": {3.00, 15.00},
	"claude-sonnet-4":   {3.00, 15.00},
	"claude-opus-4":     {15.00, 75.00},
}

// EstimateCost returns the USD cost of usage on model. Unknown models cost
// zero.
func EstimateCost(model string, usage *types.Usage) float64 {
	if usage == nil {
		return 0
	}
	p, ok := lookupPrice(model)
	if !ok {
		return 0
	}
	return (float64(usage.PromptTokens)*p.input + float64(usage.CompletionTokens)*p.output) / 1e6
}

func lookupPrice(model string) (price, bool) {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	best := ""
	for prefix := range pricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return price{}, false
	}
	return pricing[best], true
}
