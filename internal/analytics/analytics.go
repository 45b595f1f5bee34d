package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cloudx/internal/storage"
)

// DailyStats aggregates the turn log for one calendar day.
type DailyStats struct {
	Date           string                  `json:"date"`
	TotalTurns     int                     `json:"total_turns"`
	FailedTurns    int                     `json:"failed_turns"`
	UniqueSessions int                     `json:"unique_sessions"`
	ResearchTurns  int                     `json:"research_turns"`
	RefinePasses   int                     `json:"refine_passes"`
	MemoryTurns    int                     `json:"memory_turns"`
	SessionStats   map[string]SessionStats `json:"session_stats"`
}

type SessionStats struct {
	Turns         int `json:"turns"`
	ResearchTurns int `json:"research_turns"`
	RefinePasses  int `json:"refine_passes"`
}

// DayBounds returns the half-open interval covering t's calendar day in
// t's location.
func DayBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// AnalyzeDailyLogs counts the events that fall on targetDate in its location.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay, endOfDay := DayBounds(targetDate)

	stats := &DailyStats{
		Date:         startOfDay.Format("2006-01-02"),
		SessionStats: make(map[string]SessionStats),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserMessage == "" {
			continue
		}

		stats.TotalTurns++
		if event.Failed() {
			stats.FailedTurns++
		}
		if event.MemoryHits > 0 {
			stats.MemoryTurns++
		}
		stats.RefinePasses += event.RefinePasses

		ss := stats.SessionStats[event.SessionToken]
		ss.Turns++
		ss.RefinePasses += event.RefinePasses
		if event.ResearchQuery != "" {
			stats.ResearchTurns++
			ss.ResearchTurns++
		}
		stats.SessionStats[event.SessionToken] = ss
	}

	stats.UniqueSessions = len(stats.SessionStats)
	return stats
}

// GenerateReportSummary renders the stats as plain text.
func (ds *DailyStats) GenerateReportSummary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CloudX usage for %s:\n\n", ds.Date)
	fmt.Fprintf(&sb, "- Turns: %d (%d failed)\n", ds.TotalTurns, ds.FailedTurns)
	fmt.Fprintf(&sb, "- Unique sessions: %d\n", ds.UniqueSessions)
	fmt.Fprintf(&sb, "- Turns with web research: %d\n", ds.ResearchTurns)
	fmt.Fprintf(&sb, "- Self-refine passes: %d\n", ds.RefinePasses)
	fmt.Fprintf(&sb, "- Turns with memory context: %d\n", ds.MemoryTurns)

	if len(ds.SessionStats) == 0 {
		return sb.String()
	}

	tokens := make([]string, 0, len(ds.SessionStats))
	for tok := range ds.SessionStats {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	fmt.Fprintf(&sb, "\nSessions (%d):\n", len(tokens))
	for _, tok := range tokens {
		s := ds.SessionStats[tok]
		fmt.Fprintf(&sb, "- %s: %d turns", shortToken(tok), s.Turns)
		if s.ResearchTurns > 0 {
			fmt.Fprintf(&sb, ", %d researched", s.ResearchTurns)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// shortToken keeps full tokens out of reports.
func shortToken(tok string) string {
	if len(tok) <= 8 {
		return tok
	}
	return tok[:8] + "…"
}
