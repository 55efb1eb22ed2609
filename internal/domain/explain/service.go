// Package explain recovers the warehouse SQL the server generates for a
// semantic-layer query by probing it and reading the query history.
package explain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/rpggio/cubelink/internal/domain/query"
)

// ErrNativeQueryNotFound indicates the probe did not show up in the query history.
var ErrNativeQueryNotFound = errors.New("native query not found in query history")

const (
	historyWindow = 5 * time.Minute
	historyLimit  = 21
	subqueryEvent = "SubqueriesWall"
)

var (
	// trailingLimit is the query's own LIMIT clause: the last one, followed
	// only by block comments.
	trailingLimit  = regexp.MustCompile(`LIMIT ([0-9]+)((?:\s*/\*.*?\*/)*\s*)$`)
	probeLimit     = regexp.MustCompile(`LIMIT 1\b`)
	commentPattern = regexp.MustCompile(`/\*.+?\*/`)
)

// QueryRunner executes the probe query. Its result is ignored.
type QueryRunner interface {
	Execute(ctx context.Context, project, text string, opts query.Options) (*query.Table, error)
}

// History reads the server's recent query log.
type History interface {
	RecentQueries(ctx context.Context, since time.Time, limit int) (json.RawMessage, error)
}

type historyEntry struct {
	QueryText      string `json:"query_text"`
	TimelineEvents []struct {
		Type     string `json:"type"`
		Children []struct {
			QueryText string `json:"query_text"`
		} `json:"children"`
	} `json:"timeline_events"`
}

// Service runs probe queries and matches them in the history.
type Service struct {
	runner  QueryRunner
	history History
	now     func() time.Time
	logger  *slog.Logger
}

// NewService creates a new explain service. A nil now uses the wall clock.
func NewService(runner QueryRunner, history History, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{runner: runner, history: history, now: now, logger: logger}
}

// Probe returns the one-row version of text that is submitted to the server.
func Probe(text string) string {
	if loc := trailingLimit.FindStringSubmatchIndex(text); loc != nil {
		return text[:loc[0]] + "LIMIT 1" + text[loc[4]:]
	}
	return text + " LIMIT 1"
}

// replaceProbeLimit replaces the last LIMIT 1 in native, which is the one
// the probe added.
func replaceProbeLimit(native, repl string) string {
	matches := probeLimit.FindAllStringIndex(native, -1)
	if len(matches) == 0 {
		return native
	}
	last := matches[len(matches)-1]
	return native[:last[0]] + repl + native[last[1]:]
}

// Explain returns the native SQL for text. The history is read once;
// a miss fails with ErrNativeQueryNotFound and retrying is left to the caller.
func (s *Service) Explain(ctx context.Context, project, text string) (string, error) {
	probe := Probe(text)
	since := s.now().Add(-historyWindow)

	if _, err := s.runner.Execute(ctx, project, probe, query.DefaultOptions()); err != nil {
		return "", fmt.Errorf("running probe query: %w", err)
	}
	raw, err := s.history.RecentQueries(ctx, since, historyLimit)
	if err != nil {
		return "", fmt.Errorf("reading query history: %w", err)
	}
	var page struct {
		Data []historyEntry `json:"data"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return "", fmt.Errorf("decoding query history: %w", err)
	}

	native, ok := findNative(page.Data, probe)
	if !ok {
		s.logger.Warn("probe not found in query history", "entries", len(page.Data))
		return "", ErrNativeQueryNotFound
	}

	if m := trailingLimit.FindStringSubmatch(text); m != nil {
		native = replaceProbeLimit(native, "LIMIT "+m[1])
	} else {
		native = strings.TrimSpace(replaceProbeLimit(native, ""))
	}
	for _, comment := range commentPattern.FindAllString(text, -1) {
		native += " " + comment
	}
	return native, nil
}

func findNative(entries []historyEntry, probe string) (string, bool) {
	for _, entry := range entries {
		if entry.QueryText != probe {
			continue
		}
		for _, ev := range entry.TimelineEvents {
			if ev.Type == subqueryEvent && len(ev.Children) > 0 {
				return ev.Children[0].QueryText, true
			}
		}
	}
	return "", false
}
