package progress

import (
	"sync"
	"time"

	"cobiv/internal/logging"
)

//go:generate mockgen -destination=mocks/mock_progress.go -package=mocks cobiv/internal/progress Reporter,Notifier

// Reporter receives progress updates from long-running operations.
type Reporter interface {
	Start(caption string)
	SetMax(n int)
	Tick()
	Reset(caption string)
	Stop()
}

// Notifier receives ad hoc text produced by commands.
type Notifier interface {
	Notify(text string)
}

// Snapshot is a point-in-time view of a LogReporter.
type Snapshot struct {
	Caption   string
	Current   int
	Max       int
	Running   bool
	StartedAt time.Time
}

// LogReporter tracks progress in memory and writes it to the log.
// A tick is logged each time the completed share crosses another step
// percent, so large runs do not flood the output.
type LogReporter struct {
	mu      sync.Mutex
	step    int
	lastPct int
	state   Snapshot
}

// NewLogReporter creates a reporter that logs every step percent (10 if step <= 0).
func NewLogReporter(step int) *LogReporter {
	if step <= 0 {
		step = 10
	}
	return &LogReporter{step: step}
}

func (r *LogReporter) Start(caption string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = Snapshot{Caption: caption, Running: true, StartedAt: time.Now()}
	r.lastPct = 0
	logging.Info("%s", caption)
}

func (r *LogReporter) SetMax(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n < 0 {
		n = 0
	}
	r.state.Max = n
}

func (r *LogReporter) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.Current++
	if r.state.Max <= 0 {
		return
	}

	pct := r.state.Current * 100 / r.state.Max
	if pct >= r.lastPct+r.step {
		r.lastPct = pct - pct%r.step
		logging.Info("%s %d%% (%d/%d)", r.state.Caption, pct, r.state.Current, r.state.Max)
	}
}

func (r *LogReporter) Reset(caption string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caption != "" {
		r.state.Caption = caption
		logging.Info("%s", caption)
	}
	r.state.Current = 0
	r.lastPct = 0
}

func (r *LogReporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Running {
		logging.Debug("%s finished in %v", r.state.Caption, time.Since(r.state.StartedAt).Round(time.Millisecond))
	}
	r.state.Running = false
}

// Snapshot returns the current state.
func (r *LogReporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LogNotifier writes notifications to the log at info level.
type LogNotifier struct{}

func (LogNotifier) Notify(text string) {
	logging.Info("%s", text)
}

// Discard implements Reporter and Notifier and drops everything.
type Discard struct{}

func (Discard) Start(string)  {}
func (Discard) SetMax(int)    {}
func (Discard) Tick()         {}
func (Discard) Reset(string)  {}
func (Discard) Stop()         {}
func (Discard) Notify(string) {}

// OrDiscard returns r, or Discard when r is nil.
func OrDiscard(r Reporter) Reporter {
	if r == nil {
		return Discard{}
	}
	return r
}
