package progress

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) callback(u Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *recorder) last() Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

func TestCallbackReporter_SetTotal(t *testing.T) {
	rec := &recorder{}
	reporter := NewCallbackReporter(rec.callback)

	reporter.SetTotal(10, 1024*1024)
	reporter.Start("test.txt", 100)

	update := rec.last()
	if update.FilesTotal != 10 {
		t.Errorf("expected FilesTotal 10, got %d", update.FilesTotal)
	}
	if update.BytesTotal != 1024*1024 {
		t.Errorf("expected BytesTotal 1048576, got %d", update.BytesTotal)
	}
	if update.Type != UpdateStart || update.CurrentTotal != 100 {
		t.Errorf("unexpected start update: %+v", update)
	}
}

func TestCallbackReporter_Lifecycle(t *testing.T) {
	rec := &recorder{}
	reporter := NewCallbackReporter(rec.callback)
	reporter.SetTotal(2, 300)

	reporter.Start("a.txt", 100)
	reporter.Update("a.txt", 40)

	update := rec.last()
	if update.Type != UpdateProgress || update.CurrentBytes != 40 || update.BytesCompleted != 40 {
		t.Errorf("unexpected progress update: %+v", update)
	}

	reporter.Complete("a.txt")
	update = rec.last()
	if update.Type != UpdateComplete || update.FilesCompleted != 1 || update.BytesCompleted != 100 {
		t.Errorf("unexpected complete update: %+v", update)
	}

	reporter.Start("b.txt", 200)
	reporter.Update("b.txt", 50)
	reporter.Error("b.txt", errors.New("HTTP 507"))

	update = rec.last()
	if update.Type != UpdateError || update.FilesFailed != 1 || update.Error == nil {
		t.Errorf("unexpected error update: %+v", update)
	}
	// bytes of the failed transfer no longer count
	if update.BytesCompleted != 100 {
		t.Errorf("expected BytesCompleted 100 after failure, got %d", update.BytesCompleted)
	}
}

func TestCallbackReporter_UnknownPathIgnored(t *testing.T) {
	rec := &recorder{}
	reporter := NewCallbackReporter(rec.callback)

	reporter.Update("never-started.txt", 10)
	reporter.Complete("never-started.txt")

	if len(rec.updates) != 0 {
		t.Errorf("expected no updates, got %d", len(rec.updates))
	}

	// a file that failed before its upload started still counts as failed
	reporter.Error("never-started.txt", errors.New("missing"))
	if rec.last().FilesFailed != 1 {
		t.Errorf("expected FilesFailed 1")
	}
}

func TestCallbackReporter_SpeedCalculation(t *testing.T) {
	rec := &recorder{}
	reporter := NewCallbackReporter(rec.callback)

	reporter.Start("test.txt", 1000)
	time.Sleep(10 * time.Millisecond)
	reporter.Update("test.txt", 500)

	if rec.last().BytesPerSecond <= 0 {
		t.Errorf("expected positive speed, got %f", rec.last().BytesPerSecond)
	}
}

func TestCallbackReporter_Concurrent(t *testing.T) {
	rec := &recorder{}
	reporter := NewCallbackReporter(rec.callback)
	reporter.SetTotal(20, 20*100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("file-%02d.bin", i)
			reporter.Start(path, 100)
			for sent := int64(10); sent <= 100; sent += 10 {
				reporter.Update(path, sent)
			}
			reporter.Complete(path)
		}(i)
	}
	wg.Wait()

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	if reporter.filesCompleted != 20 {
		t.Errorf("expected 20 completed, got %d", reporter.filesCompleted)
	}
	if reporter.bytesCompleted != 2000 || reporter.bytesInFlight != 0 {
		t.Errorf("expected 2000 bytes and none in flight, got %d/%d", reporter.bytesCompleted, reporter.bytesInFlight)
	}
}

func TestSecurity_CallbackDeadlock(t *testing.T) {
	var reporter *CallbackReporter
	reporter = NewCallbackReporter(func(u Update) {
		// re-entering the reporter from its callback must not deadlock
		if u.Type == UpdateStart {
			reporter.SetTotal(1, 1)
		}
	})

	done := make(chan struct{})
	go func() {
		reporter.Start("x.txt", 1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback deadlocked")
	}
}

func TestProgressReader(t *testing.T) {
	rec := &recorder{}
	reporter := NewCallbackReporter(rec.callback)
	reporter.Start("data.txt", 11)

	pr := NewProgressReader(strings.NewReader("hello world"), reporter, "data.txt")
	data, err := io.ReadAll(pr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if string(data) != "hello world" {
		t.Errorf("unexpected data %q", data)
	}
	if pr.Transferred() != 11 {
		t.Errorf("expected 11 bytes transferred, got %d", pr.Transferred())
	}
	if rec.last().CurrentBytes != 11 {
		t.Errorf("expected last update at 11 bytes, got %d", rec.last().CurrentBytes)
	}
}

func TestProgressReader_NilReporter(t *testing.T) {
	pr := NewProgressReader(strings.NewReader("abc"), nil, "x")
	if _, err := io.ReadAll(pr); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{500, "500 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{-1, "0 B"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.expected)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	if got := FormatSpeed(2048); got != "2.0 KiB/s" {
		t.Errorf("FormatSpeed(2048) = %q", got)
	}
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		current, total int64
		expected       string
	}{
		{0, 100, "[>         ]   0.0%"},
		{50, 100, "[=====>    ]  50.0%"},
		{100, 100, "[==========] 100.0%"},
		{1, 0, ""},
	}

	for _, tt := range tests {
		if got := FormatProgress(tt.current, tt.total, 10); got != tt.expected {
			t.Errorf("FormatProgress(%d, %d) = %q, want %q", tt.current, tt.total, got, tt.expected)
		}
	}
}

func TestNullReporter(t *testing.T) {
	var r Reporter = NullReporter{}
	r.SetTotal(1, 1)
	r.Start("x", 1)
	r.Update("x", 1)
	r.Complete("x")
	r.Error("x", errors.New("boom"))
}
