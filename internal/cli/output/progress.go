package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressBar reports how much of a snapshot has been read.
type ProgressBar struct {
	w     io.Writer
	title string
	total int64
	width int

	mu      sync.Mutex
	current int64
	done    bool
}

// NewProgressBar returns a bar for total bytes. A total of zero renders
// the byte count only.
func NewProgressBar(w io.Writer, title string, total int64) *ProgressBar {
	return &ProgressBar{w: w, title: title, total: total, width: 30}
}

// Update sets the number of bytes processed. It matches the decoder's
// progress callback.
func (p *ProgressBar) Update(processed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.current = processed
	p.render()
}

// Finish renders the final state and ends the line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	if p.total > 0 {
		p.current = p.total
	}
	p.render()
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) render() {
	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%s %s", p.title, FormatBytes(p.current))
		return
	}
	frac := min(float64(p.current)/float64(p.total), 1)
	filled := int(float64(p.width) * frac)
	fmt.Fprintf(p.w, "\r%s [%s%s] %3.0f%% (%s/%s)",
		p.title,
		strings.Repeat("#", filled),
		strings.Repeat(".", p.width-filled),
		frac*100,
		FormatBytes(p.current),
		FormatBytes(p.total),
	)
}

// FormatBytes formats a byte count with binary units.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
