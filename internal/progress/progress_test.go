package progress

import (
	"testing"
)

func TestLogReporterLifecycle(t *testing.T) {
	r := NewLogReporter(25)

	r.Start("Scanning")
	r.SetMax(4)
	for n := 0; n < 3; n++ {
		r.Tick()
	}

	snap := r.Snapshot()
	if !snap.Running {
		t.Error("expected reporter to be running")
	}
	if snap.Current != 3 || snap.Max != 4 {
		t.Errorf("got %d/%d, want 3/4", snap.Current, snap.Max)
	}
	if snap.Caption != "Scanning" {
		t.Errorf("Caption = %q, want %q", snap.Caption, "Scanning")
	}

	r.Reset("Updating files...")
	snap = r.Snapshot()
	if snap.Current != 0 {
		t.Errorf("Current after Reset = %d, want 0", snap.Current)
	}
	if snap.Caption != "Updating files..." {
		t.Errorf("Caption after Reset = %q", snap.Caption)
	}

	r.Stop()
	if r.Snapshot().Running {
		t.Error("expected reporter to be stopped")
	}
}

func TestLogReporterResetKeepsCaptionWhenEmpty(t *testing.T) {
	r := NewLogReporter(0)
	r.Start("Creating default set...")
	r.Reset("")

	if got := r.Snapshot().Caption; got != "Creating default set..." {
		t.Errorf("Caption = %q, want unchanged", got)
	}
}

func TestLogReporterNegativeMax(t *testing.T) {
	r := NewLogReporter(10)
	r.SetMax(-5)
	r.Tick()

	if got := r.Snapshot().Max; got != 0 {
		t.Errorf("Max = %d, want 0", got)
	}
}

func TestOrDiscard(t *testing.T) {
	if _, ok := OrDiscard(nil).(Discard); !ok {
		t.Error("OrDiscard(nil) should return Discard")
	}

	r := NewLogReporter(10)
	if OrDiscard(r) != Reporter(r) {
		t.Error("OrDiscard should return the given reporter")
	}
}

func TestDiscardImplementsInterfaces(t *testing.T) {
	var _ Reporter = Discard{}
	var _ Notifier = Discard{}
	var _ Notifier = LogNotifier{}

	d := Discard{}
	d.Start("x")
	d.SetMax(1)
	d.Tick()
	d.Reset("y")
	d.Stop()
	d.Notify("z")
}
