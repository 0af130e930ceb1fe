package app

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDispatcher_RunsInOrder(t *testing.T) {
	d := newDispatcher(16, time.Second, nil)
	defer d.close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 10; i++ {
		i := i
		d.submit("record", func(context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		})
	}
	d.flush()

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("jobs ran out of order: %v", got)
		}
	}
	if len(got) != 10 {
		t.Errorf("ran %d jobs, want 10", len(got))
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := newDispatcher(1, time.Second, nil)
	defer d.close()

	release := make(chan struct{})
	started := make(chan struct{})
	d.submit("block", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	if !d.submit("queued", func(context.Context) error { return nil }) {
		t.Fatal("first job after the running one should be queued")
	}
	if d.submit("dropped", func(context.Context) error { return nil }) {
		t.Fatal("job should be dropped with a full queue")
	}
	if got := d.dropped.Load(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
	close(release)
}

func TestDispatcher_ErrorsAndPanics(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	d := newDispatcher(8, time.Second, func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	defer d.close()

	boom := errors.New("boom")
	d.submit("fails", func(context.Context) error { return boom })
	d.submit("panics", func(context.Context) error { panic("bad sink") })
	d.submit("ok", func(context.Context) error { return nil })
	d.flush()

	if got := d.failed.Load(); got != 2 {
		t.Errorf("failed = %d, want 2", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 2 || !errors.Is(errs[0], boom) {
		t.Errorf("errors = %v", errs)
	}
}

func TestDispatcher_JobTimeout(t *testing.T) {
	d := newDispatcher(4, 20*time.Millisecond, nil)
	defer d.close()

	var err error
	d.submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		err = ctx.Err()
		return err
	})
	d.flush()

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("job context error = %v, want DeadlineExceeded", err)
	}
}

func TestDispatcher_CloseDrains(t *testing.T) {
	d := newDispatcher(8, time.Second, nil)

	ran := 0
	for i := 0; i < 5; i++ {
		d.submit("count", func(context.Context) error {
			ran++
			return nil
		})
	}
	d.close()

	if ran != 5 {
		t.Errorf("ran %d jobs before close returned, want 5", ran)
	}
	if d.submit("late", func(context.Context) error { return nil }) {
		t.Error("submit after close should fail")
	}
	d.flush()
	d.close()
}

func TestDispatcher_ReportsEachFailureOnce(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	tests := []struct {
		name     string
		handler  bool
		wantLogs int
	}{
		{"handler set", true, 0},
		{"no handler", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			calls := 0
			var onError func(error)
			if tt.handler {
				onError = func(error) { calls++ }
			}
			d := newDispatcher(4, time.Second, onError)
			d.submit("set indicator", func(context.Context) error { return errors.New("broker down") })
			d.close()

			if got := strings.Count(buf.String(), "broker down"); got != tt.wantLogs {
				t.Errorf("logged the failure %d times, want %d", got, tt.wantLogs)
			}
			if tt.handler && calls != 1 {
				t.Errorf("handler called %d times, want 1", calls)
			}
		})
	}
}
