package syncer

import (
	"encoding/json"
	"fmt"
)

// Status is the terminal state of one recipe in a batch.
type Status int

const (
	Succeeded Status = iota + 1
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Step names the stage a recipe reached.
type Step string

const (
	StepSelect    Step = "select"
	StepBranch    Step = "branch"
	StepReplace   Step = "replace"
	StepStage     Step = "stage"
	StepCommit    Step = "commit"
	StepReconcile Step = "reconcile"
	StepPublish   Step = "publish"
)

// Outcome reports what happened to one recipe. Step is where a Failed or
// Skipped recipe stopped.
type Outcome struct {
	Recipe         string    `json:"recipe"`
	Direction      Direction `json:"direction"`
	Status         Status    `json:"status"`
	Step           Step      `json:"step,omitempty"`
	Branch         string    `json:"branch,omitempty"`
	PullRequestURL string    `json:"pull_request_url,omitempty"`
	Err            error     `json:"-"`
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	type alias Outcome
	var msg string
	if o.Err != nil {
		msg = o.Err.Error()
	}
	return json.Marshal(struct {
		alias
		Error string `json:"error,omitempty"`
	}{alias(o), msg})
}

// Summary counts outcomes per status.
type Summary struct {
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch o.Status {
		case Succeeded:
			s.Succeeded++
		case Skipped:
			s.Skipped++
		case Failed:
			s.Failed++
		}
	}
	return s
}

// AllFailed reports a batch in which recipes failed and none succeeded.
func (s Summary) AllFailed() bool {
	return s.Failed > 0 && s.Succeeded == 0
}
