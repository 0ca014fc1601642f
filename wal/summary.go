package wal

import (
	"encoding/json"
	"sort"
	"time"
)

// RunSummary aggregates the journal entries of one run
type RunSummary struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Failed   bool
	Error    string
	// Writes counts successful writes by family and action, e.g. "token/create".
	Writes      map[string]int
	WriteErrors int
}

// writeData is the subset of a write entry's payload the summary reads.
type writeData struct {
	Family string `json:"family"`
	Action string `json:"action"`
}

// Summarize folds entries into one summary per run, ordered by start time.
func Summarize(entries []*Entry) []RunSummary {
	byRun := map[string]*RunSummary{}
	var order []string

	for _, e := range entries {
		s, ok := byRun[e.RunID]
		if !ok {
			s = &RunSummary{RunID: e.RunID, Started: e.Timestamp, Writes: map[string]int{}}
			byRun[e.RunID] = s
			order = append(order, e.RunID)
		}
		if e.Timestamp.Before(s.Started) {
			s.Started = e.Timestamp
		}

		switch e.Type {
		case EntryWrite:
			var d writeData
			if json.Unmarshal(e.Data, &d) == nil {
				s.Writes[d.Family+"/"+d.Action]++
			}
		case EntryWriteFailed:
			s.WriteErrors++
		case EntryRunFinished:
			s.Finished = e.Timestamp
		case EntryRunFailed:
			s.Finished = e.Timestamp
			s.Failed = true
			s.Error = e.Error
		}
	}

	out := make([]RunSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *byRun[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Started.Before(out[j].Started)
	})
	return out
}
