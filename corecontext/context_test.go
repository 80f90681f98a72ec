package corecontext

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name      string
	initErr   error
	shutdownErr error
	log       *[]string
}

func (s recordingService) Name() string { return s.name }

func (s recordingService) Init(ctx context.Context) error {
	*s.log = append(*s.log, "init:"+s.name)
	return s.initErr
}

func (s recordingService) Shutdown(ctx context.Context) error {
	*s.log = append(*s.log, "shutdown:"+s.name)
	return s.shutdownErr
}

// resetGlobalGuard is needed because the initialized flag is process-wide
// and tests would otherwise interfere with each other.
func resetGlobalGuard() {
	globalMu.Lock()
	globalInitialized = false
	globalMu.Unlock()
}

func TestStartupRunsServicesInOrder(t *testing.T) {
	resetGlobalGuard()
	var log []string
	c := New(nil,
		recordingService{name: "a", log: &log},
		recordingService{name: "b", log: &log},
		recordingService{name: "c", log: &log},
	)

	if err := c.Startup(context.Background()); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	want := []string{"init:a", "init:b", "init:c"}
	if !equalLogs(log, want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
}

func TestShutdownTearsDownInReverseOrder(t *testing.T) {
	resetGlobalGuard()
	var log []string
	var shutdownCalled Event = -1
	c := New(func(e Event) { shutdownCalled = e },
		recordingService{name: "a", log: &log},
		recordingService{name: "b", log: &log},
		recordingService{name: "c", log: &log},
	)

	if err := c.Startup(context.Background()); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	log = nil

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	want := []string{"shutdown:c", "shutdown:b", "shutdown:a"}
	if !equalLogs(log, want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	if shutdownCalled != EventShutdown {
		t.Error("update sink never received EventShutdown")
	}
}

func TestStartupFailureTearsDownPreviouslyStartedInReverse(t *testing.T) {
	resetGlobalGuard()
	var log []string
	failure := errors.New("boom")
	c := New(nil,
		recordingService{name: "a", log: &log},
		recordingService{name: "b", log: &log},
		recordingService{name: "c", initErr: failure, log: &log},
	)

	err := c.Startup(context.Background())
	if err == nil {
		t.Fatal("Startup() succeeded, want the injected failure")
	}

	want := []string{"init:a", "init:b", "init:c", "shutdown:b", "shutdown:a"}
	if !equalLogs(log, want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
}

func TestStartupFailureReleasesGuardForRetry(t *testing.T) {
	resetGlobalGuard()
	var log []string
	failure := errors.New("boom")
	c := New(nil, recordingService{name: "a", initErr: failure, log: &log})

	if err := c.Startup(context.Background()); err == nil {
		t.Fatal("Startup() succeeded, want the injected failure")
	}

	c2 := New(nil, recordingService{name: "a", log: &log})
	if err := c2.Startup(context.Background()); err != nil {
		t.Fatalf("second Startup() after a failed one error = %v, want success (guard released)", err)
	}
}

func TestStartupRejectsReinitializationBeforeShutdown(t *testing.T) {
	resetGlobalGuard()
	var log []string
	c := New(nil, recordingService{name: "a", log: &log})
	if err := c.Startup(context.Background()); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	c2 := New(nil, recordingService{name: "a", log: &log})
	if err := c2.Startup(context.Background()); err != ErrAlreadyInitialized {
		t.Fatalf("second Startup() error = %v, want ErrAlreadyInitialized", err)
	}

	c.Shutdown(context.Background())
}

func equalLogs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
