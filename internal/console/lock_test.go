package console

import (
	"testing"
	"time"
)

func newTestLocker() *Locker {
	l := NewLocker()
	l.killOrphans = func(string) int { return 0 } // no subprocess calls in tests
	return l
}

func TestLocker_TryLockSucceedsWhenFree(t *testing.T) {
	l := newTestLocker()
	release, acquired := l.TryLock("dom1")
	if !acquired {
		t.Fatal("expected TryLock to succeed on a free domain")
	}
	release()
}

func TestLocker_TryLockFailsWhenHeld(t *testing.T) {
	l := newTestLocker()
	release, acquired := l.TryLock("dom1")
	if !acquired {
		t.Fatal("expected first TryLock to succeed")
	}
	defer release()

	_, acquired2 := l.TryLock("dom1")
	if acquired2 {
		t.Fatal("expected a second TryLock on the same domain to fail while held")
	}
}

func TestLocker_TryLockFailsDuringActiveExtraction(t *testing.T) {
	l := newTestLocker()
	done := make(chan struct{})
	go func() {
		l.ExtractionSession("dom1", func() error {
			close(done)
			time.Sleep(100 * time.Millisecond)
			return nil
		})
	}()
	<-done

	_, acquired := l.TryLock("dom1")
	if acquired {
		t.Fatal("expected TryLock to fail while an extraction session is active")
	}
}

func TestLocker_LockBlocksUntilReleaseThenSucceeds(t *testing.T) {
	l := newTestLocker()
	release, err := l.Lock("dom1", time.Second, false)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	unlocked := make(chan struct{})
	go func() {
		release()
		close(unlocked)
	}()
	<-unlocked

	release2, err := l.Lock("dom1", time.Second, false)
	if err != nil {
		t.Fatalf("second Lock() error = %v", err)
	}
	release2()
}

func TestLocker_LockTimesOutWhenHeld(t *testing.T) {
	l := newTestLocker()
	release, err := l.Lock("dom1", time.Second, false)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer release()

	_, err = l.Lock("dom1", 100*time.Millisecond, false)
	if err == nil {
		t.Fatal("expected a timeout error acquiring an already-held lock")
	}
}

func TestLocker_LocksAreIndependentPerDomain(t *testing.T) {
	l := newTestLocker()
	release1, err := l.Lock("dom1", time.Second, false)
	if err != nil {
		t.Fatalf("Lock(dom1) error = %v", err)
	}
	defer release1()

	release2, err := l.Lock("dom2", time.Second, false)
	if err != nil {
		t.Fatalf("Lock(dom2) error = %v, want independent per-domain locks", err)
	}
	release2()
}
