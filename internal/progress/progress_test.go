package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLine(t *testing.T) {
	b := newBar(&bytes.Buffer{}, "convert", "files", 4)
	b.Increment()
	b.Increment()
	got := b.line(2 * time.Second)
	want := "convert [" + strings.Repeat("█", 15) + strings.Repeat("░", 15) + "]  50%  2/4 files  1.0/s  2s"
	if got != want {
		t.Errorf("line = %q, want %q", got, want)
	}
}

func TestSet(t *testing.T) {
	b := newBar(&bytes.Buffer{}, "read", "", fractionSteps)
	b.Set(0.25)
	b.Set(0.1)
	if got := b.processed.Load(); got != 250 {
		t.Errorf("processed = %d, want 250", got)
	}
	b.Set(2)
	if !strings.Contains(b.line(0), "100%") {
		t.Errorf("line %q does not clamp to 100%%", b.line(0))
	}
}

func TestConcurrentIncrement(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, "work", "items", 1000)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Increment()
			}
		}()
	}
	wg.Wait()
	b.Finish()
	b.Finish()
	if !strings.Contains(buf.String(), "1000/1000 items") {
		t.Errorf("final output %q lacks the full count", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{45*time.Second + 900*time.Millisecond, "45s"},
		{83 * time.Second, "1m23s"},
		{61 * time.Minute, "61m00s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
