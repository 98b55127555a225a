// Package progress draws in-place progress bars on a terminal.
package progress

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// fractionSteps is the resolution of bars driven by Set.
const fractionSteps = 1000

// Bar renders an in-place progress bar. It refreshes at a fixed interval
// and supports concurrent Increment and Set calls from several goroutines.
type Bar struct {
	w         io.Writer
	total     int64
	unit      string
	processed atomic.Int64
	label     string
	barWidth  int
	start     time.Time
	done      chan struct{}
	exited    chan struct{}
	once      sync.Once
	mu        sync.Mutex
}

// New starts a bar counting total items of the given unit.
func New(w io.Writer, label, unit string, total int64) *Bar {
	b := newBar(w, label, unit, total)
	b.exited = make(chan struct{})
	go b.run(100 * time.Millisecond)
	return b
}

// NewFraction starts a bar driven by Set with fractions between 0 and 1, the
// shape of the progress callbacks of the codec.
func NewFraction(w io.Writer, label string) *Bar {
	return New(w, label, "", fractionSteps)
}

func newBar(w io.Writer, label, unit string, total int64) *Bar {
	return &Bar{
		w:        w,
		total:    total,
		unit:     unit,
		label:    label,
		barWidth: 30,
		start:    time.Now(),
		done:     make(chan struct{}),
	}
}

// Increment marks one more item as processed.
func (b *Bar) Increment() {
	b.processed.Add(1)
}

// Set records the fraction done. Progress never moves backwards.
func (b *Bar) Set(f float64) {
	v := int64(math.Round(f * float64(b.total)))
	for {
		cur := b.processed.Load()
		if v <= cur || b.processed.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Finish stops the refresh loop and prints the final state with a newline.
func (b *Bar) Finish() {
	b.once.Do(func() {
		close(b.done)
		if b.exited != nil {
			<-b.exited
		}
		b.draw()
		fmt.Fprint(b.w, "\n")
	})
}

func (b *Bar) run(interval time.Duration) {
	defer close(b.exited)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.draw()
		}
	}
}

func (b *Bar) draw() {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.w, "\r%s\033[K", b.line(time.Since(b.start)))
}

// line renders the bar after elapsed time.
func (b *Bar) line(elapsed time.Duration) string {
	processed := b.processed.Load()
	var frac float64
	if b.total > 0 {
		frac = float64(processed) / float64(b.total)
	}
	frac = min(frac, 1)

	filled := int(float64(b.barWidth) * frac)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", b.barWidth-filled)
	if b.unit == "" {
		return fmt.Sprintf("%s [%s] %3.0f%%  %s", b.label, bar, frac*100, formatDuration(elapsed))
	}

	rate := float64(0)
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(processed) / secs
	}
	return fmt.Sprintf("%s [%s] %3.0f%%  %d/%d %s  %.1f/s  %s",
		b.label, bar, frac*100, processed, b.total, b.unit, rate, formatDuration(elapsed))
}

// formatDuration formats a duration concisely (e.g. "1m23s", "45s", "0s").
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) - m*60
	return fmt.Sprintf("%dm%02ds", m, s)
}
