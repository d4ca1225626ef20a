package report

import (
	"encoding/json"
	"io"

	"github.com/dfinity-lab/raclette/core"
)

// JSON emits one JSON object per lifecycle event, one per line.
type JSON struct {
	enc *json.Encoder
}

func NewJSON(out io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(out)}
}

type jsonEvent struct {
	Event      string `json:"event"`
	Total      int    `json:"total,omitempty"`
	Name       string `json:"name,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Status     string `json:"status,omitempty"`
	ExitCode   int    `json:"exit_code,omitempty"`
	Signal     string `json:"signal,omitempty"`
	Reason     string `json:"reason,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
}

func (r *JSON) emit(ev jsonEvent) {
	r.enc.Encode(ev)
}

func (r *JSON) Init(plan []core.Task) {
	r.emit(jsonEvent{Event: "init", Total: len(plan)})
}

func (r *JSON) Start(name string) {
	r.emit(jsonEvent{Event: "start", Name: name})
}

func (r *JSON) Stage(fullName []string, frame *core.StageReport) {
	sub := core.StageAsCompleted(fullName, frame)
	r.emit(jsonEvent{
		Event:      "stage",
		Name:       sub.Name(),
		Stage:      frame.Name,
		Status:     sub.Status.Label(),
		ExitCode:   sub.Status.ExitCode,
		Reason:     sub.Status.Reason,
		DurationMs: frame.Duration.Milliseconds(),
	})
}

func (r *JSON) Report(task *core.CompletedTask) {
	r.emit(jsonEvent{
		Event:      "report",
		Name:       task.Name(),
		Status:     task.Status.Label(),
		ExitCode:   task.Status.ExitCode,
		Signal:     task.Status.Signal,
		Reason:     task.Status.Reason,
		DurationMs: task.Duration.Milliseconds(),
		Stdout:     string(task.Stdout),
		Stderr:     string(task.Stderr),
	})
}

func (r *JSON) Done() {
	r.emit(jsonEvent{Event: "done"})
}
