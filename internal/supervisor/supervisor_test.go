package supervisor

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestSupervisor() *Supervisor {
	return New(Options{
		StopGrace:  2 * time.Second,
		LogHistory: 200,
	})
}

// waitFor polls cond until it returns true or the timeout expires
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartCapturesOutput(t *testing.T) {
	s := newTestSupervisor()
	defer s.Stop()

	pid, err := s.Start("echo ready; sleep 5", t.TempDir())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if pid <= 0 {
		t.Errorf("expected a positive pid, got %d", pid)
	}

	waitFor(t, 5*time.Second, "output line", func() bool {
		for _, line := range s.Logs(0) {
			if strings.Contains(line, "ready") {
				return true
			}
		}
		return false
	})

	st := s.Status()
	if st.State != StateRunning {
		t.Errorf("expected running, got %s", st.State)
	}
	if st.Pid != pid {
		t.Errorf("status pid %d, want %d", st.Pid, pid)
	}
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	s := newTestSupervisor()
	defer s.Stop()

	pid, err := s.Start("sleep 10", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := s.Start("sleep 10", ""); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	// The original process is untouched
	st := s.Status()
	if st.State != StateRunning || st.Pid != pid {
		t.Errorf("original process disturbed: %+v", st)
	}
}

func TestStopOnStoppedIsNoop(t *testing.T) {
	s := newTestSupervisor()

	// Run something to completion so the ring has content
	if _, err := s.Start("echo done", ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, 5*time.Second, "process exit", func() bool {
		return s.Status().State == StateStopped
	})

	before := len(s.Logs(0))
	if before == 0 {
		t.Fatal("expected log lines from the completed run")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop on stopped supervisor errored: %v", err)
	}
	if got := len(s.Logs(0)); got != before {
		t.Errorf("no-op stop altered the log ring: %d -> %d", before, got)
	}
}

func TestStopTerminatesProcess(t *testing.T) {
	s := newTestSupervisor()

	pid, err := s.Start("sleep 30", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	waitFor(t, 5*time.Second, "stopped state", func() bool {
		return s.Status().State == StateStopped
	})

	st := s.Status()
	if st.Pid != 0 {
		t.Errorf("expected no pid after stop, got %d", st.Pid)
	}
	_ = pid
}

func TestLaunchFailureIsSynchronous(t *testing.T) {
	s := newTestSupervisor()

	_, err := s.Start("true", "/this/directory/does/not/exist")
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("expected ErrLaunchFailed, got %v", err)
	}
	// The OS error explains what went wrong; it must survive the wrapping
	if !strings.Contains(err.Error(), "no such file or directory") {
		t.Errorf("launch error lost the OS cause: %v", err)
	}
	if s.Status().State != StateStopped {
		t.Errorf("expected stopped after failed launch, got %s", s.Status().State)
	}
}

func TestCrashIsDetectedAndRecorded(t *testing.T) {
	s := newTestSupervisor()

	if _, err := s.Start("exit 3", ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 5*time.Second, "crash detection", func() bool {
		return s.Status().State == StateStopped
	})

	found := false
	for _, line := range s.Logs(0) {
		if strings.Contains(line, "exited with code 3") {
			found = true
		}
	}
	if !found {
		t.Errorf("exit code not recorded in log ring: %v", s.Logs(0))
	}
}

func TestFreshStartClearsRing(t *testing.T) {
	s := newTestSupervisor()
	defer s.Stop()

	s.Start("echo first-run", "")
	waitFor(t, 5*time.Second, "first run exit", func() bool {
		return s.Status().State == StateStopped
	})

	if _, err := s.Start("echo second-run; sleep 5", ""); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	waitFor(t, 5*time.Second, "second run output", func() bool {
		return len(s.Logs(0)) > 0
	})

	for _, line := range s.Logs(0) {
		if strings.Contains(line, "first-run") {
			t.Errorf("stale line survived a fresh start: %q", line)
		}
	}
}

func TestSubscribeGetsNewLinesOnly(t *testing.T) {
	s := newTestSupervisor()
	defer s.Stop()

	s.Start("echo early; sleep 1; echo late; sleep 10", "")
	waitFor(t, 5*time.Second, "early line", func() bool {
		for _, line := range s.Logs(0) {
			if strings.Contains(line, "early") {
				return true
			}
		}
		return false
	})

	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case line := <-ch:
			if strings.Contains(line, "early") {
				t.Fatal("live channel replayed history")
			}
			if strings.Contains(line, "late") {
				return
			}
		case <-deadline:
			t.Fatal("live line never arrived")
		}
	}
}

func TestRestartGetsNewPid(t *testing.T) {
	s := newTestSupervisor()
	defer s.Stop()

	first, err := s.Start("sleep 30", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second, err := s.Restart()
	if err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if second == first {
		t.Errorf("restart reused pid %d", first)
	}
	if s.Status().State != StateRunning {
		t.Errorf("expected running after restart, got %s", s.Status().State)
	}
}

func TestRestartWithoutHistoryFails(t *testing.T) {
	s := newTestSupervisor()

	if _, err := s.Restart(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}
