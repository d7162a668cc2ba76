package domain

import "time"

// Demographics holds the post-session questionnaire answers.
type Demographics struct {
	Age      string `json:"age"`
	Gender   string `json:"gender"`
	Comments string `json:"comments,omitempty"`
}

// ReturnWindow is the time range during which a participant may come back for
// a follow-up part, together with the code that identifies it.
type ReturnWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Metadata describes a session: condition assignment, key binding, timing
// and fields added once the trials are over.
type Metadata struct {
	SessionID      string     `json:"session_id"`
	Variant        string     `json:"variant"`
	ParticipantID  string     `json:"participant_id,omitempty"`
	KeyBindings    KeyBinding `json:"keyBindings,omitempty"`
	Counterbalance *int       `json:"counterbalance,omitempty"`
	DelayGroup     string     `json:"delaygroup,omitempty"`
	TrialOrder     []string   `json:"trial_order"`
	NTrials        int        `json:"nTrials"`
	StartedAt      time.Time  `json:"started_at"`
	// UTCOffset is the participant's reported offset from UTC in minutes.
	UTCOffset    *int               `json:"utc_offset_minutes,omitempty"`
	SubmittedAt  *time.Time         `json:"submitted_at,omitempty"`
	Demographics *Demographics      `json:"demographics,omitempty"`
	Accuracy     map[string]float64 `json:"accuracy,omitempty"`
	ExitCode     string             `json:"exitcode,omitempty"`
	Return       *ReturnWindow      `json:"return,omitempty"`
	Extra        map[string]string  `json:"extra,omitempty"`
}

// MaxUTCOffset bounds a reported UTC offset, in minutes.
const MaxUTCOffset = 14 * 60

// ParticipantTime returns t in the participant's reported zone, or in UTC
// when no valid offset was reported.
func (m Metadata) ParticipantTime(t time.Time) time.Time {
	if m.UTCOffset == nil || *m.UTCOffset < -MaxUTCOffset || *m.UTCOffset > MaxUTCOffset {
		return t.UTC()
	}
	return t.In(time.FixedZone("participant", *m.UTCOffset*60))
}

// MetadataPatch carries fields that arrive after the last trial.
type MetadataPatch struct {
	Demographics *Demographics     `json:"demographics,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}
