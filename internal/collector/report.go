package collector

import "time"

type Outcome string

const (
	OutcomeReposted   Outcome = "reposted"
	OutcomeEmpty      Outcome = "empty"
	OutcomeFetchError Outcome = "fetch_error"
	OutcomeUnresolved Outcome = "unresolved"
)

// Report summarises one collection pass.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	TriggerID  string    `json:"trigger_id,omitempty"`
	OriginID   string    `json:"origin_id"`
	SourceID   string    `json:"source_id"`
	DestID     string    `json:"dest_id"`
	Fetched    int       `json:"fetched"`
	Matched    int       `json:"matched"`
	Reposted   int       `json:"reposted"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
}

type Recorder interface {
	Record(r Report)
}

type nopRecorder struct{}

func (nopRecorder) Record(Report) {}
