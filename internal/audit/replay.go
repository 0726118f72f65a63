package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Filter selects entries for Query. Zero fields match everything.
type Filter struct {
	Port   uint16
	Action string
	From   time.Time
	To     time.Time
}

func (f Filter) match(e Entry) bool {
	if f.Port != 0 && e.Port != f.Port {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

// Summary counts decisions in a query result.
type Summary struct {
	Total           int    `json:"total"`
	Approved        int    `json:"approved"`
	ApprovedSession int    `json:"approved_session"`
	Rejected        int    `json:"rejected"`
	Cancelled       int    `json:"cancelled"`
	FirstTimestamp  string `json:"first_timestamp,omitempty"`
	LastTimestamp   string `json:"last_timestamp,omitempty"`
}

func (s *Summary) add(e Entry) {
	s.Total++
	switch e.Decision {
	case DecisionApproved:
		s.Approved++
	case DecisionApprovedSession:
		s.ApprovedSession++
	case DecisionRejected:
		s.Rejected++
	case DecisionCancelled:
		s.Cancelled++
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}

// Result holds filtered entries and their summary.
type Result struct {
	Entries []Entry `json:"entries"`
	Summary Summary `json:"summary"`
}

// Query reads the audit log and returns entries matching the filter.
// Malformed lines are skipped.
func Query(path string, filter Filter) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &Result{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !filter.match(entry) {
			continue
		}
		result.Entries = append(result.Entries, entry)
		result.Summary.add(entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return result, nil
}
