package domain

import (
	"errors"
	"time"
)

// ErrLogFrozen is returned when metadata is amended after submission.
var ErrLogFrozen = errors.New("data log is frozen")

// Log is the append-only record of a session: its metadata and the ordered
// trial results. The running session is its single owner.
type Log struct {
	Metadata Metadata `json:"metadata"`
	Results  []Result `json:"results"`

	frozen bool
}

// NewLog creates an empty log for the given session metadata.
func NewLog(meta Metadata) *Log {
	return &Log{
		Metadata: meta,
		Results:  make([]Result, 0, meta.NTrials),
	}
}

// RestoreLog rebuilds a submitted log read back from storage. The result is
// frozen.
func RestoreLog(meta Metadata, results []Result) *Log {
	if results == nil {
		results = []Result{}
	}
	return &Log{Metadata: meta, Results: results, frozen: true}
}

// Append adds a result at the end of the log.
func (l *Log) Append(r Result) {
	l.Results = append(l.Results, r)
}

// Len returns the number of recorded results.
func (l *Log) Len() int {
	return len(l.Results)
}

// Finalize merges late-arriving metadata fields.
func (l *Log) Finalize(patch MetadataPatch) error {
	if l.frozen {
		return ErrLogFrozen
	}
	if patch.Demographics != nil {
		d := *patch.Demographics
		l.Metadata.Demographics = &d
	}
	if len(patch.Extra) > 0 {
		if l.Metadata.Extra == nil {
			l.Metadata.Extra = make(map[string]string, len(patch.Extra))
		}
		for k, v := range patch.Extra {
			l.Metadata.Extra[k] = v
		}
	}
	return nil
}

// Freeze stamps the submission time and rejects further metadata changes.
func (l *Log) Freeze(at time.Time) {
	if l.frozen {
		return
	}
	l.frozen = true
	l.Metadata.SubmittedAt = &at
}

// Frozen reports whether the log has been handed off for submission.
func (l *Log) Frozen() bool {
	return l.frozen
}

// CategoryAccuracy returns, per true category, the share of scored trials
// answered correctly.
func (l *Log) CategoryAccuracy() map[string]float64 {
	total := make(map[string]int)
	correct := make(map[string]int)
	for _, r := range l.Results {
		if r.Accuracy == nil || r.Category == "" {
			continue
		}
		total[r.Category]++
		if r.Correct() {
			correct[r.Category]++
		}
	}

	acc := make(map[string]float64, len(total))
	for cat, n := range total {
		acc[cat] = float64(correct[cat]) / float64(n)
	}
	return acc
}
