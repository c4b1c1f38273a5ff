package fetch

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docker/go-units"
	"github.com/mattn/go-isatty"
)

const (
	// MinChunkSize is the smallest read used while streaming a download.
	MinChunkSize = 1024 * 1024

	barWidth = 50
)

// ChunkSize returns the read size for a body of total bytes: one thousandth
// of the body, but never less than MinChunkSize.
func ChunkSize(total int64) int64 {
	if chunk := total / 1000; chunk > MinChunkSize {
		return chunk
	}
	return MinChunkSize
}

// TerminalOutput returns f when it is a terminal and nil otherwise, so
// progress bars are only drawn for interactive sessions.
func TerminalOutput(f *os.File) io.Writer {
	if f == nil {
		return nil
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return f
	}
	return nil
}

// Progress draws a single-line bar for a download of known size.
type Progress struct {
	out   io.Writer
	total int64
	done  int64
}

// NewProgress returns a bar for total bytes drawn to out.
func NewProgress(out io.Writer, total int64) *Progress {
	return &Progress{out: out, total: total}
}

// Write counts p as downloaded and redraws the bar.
func (p *Progress) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	p.draw()
	return len(b), nil
}

// Finish terminates the progress line.
func (p *Progress) Finish() {
	_, _ = fmt.Fprintln(p.out)
}

// String renders the bar, e.g. "[█████.....] 12.3MB/1.2GB".
func (p *Progress) String() string {
	filled := 0
	if p.total > 0 {
		filled = int(p.done * barWidth / p.total)
	}
	if filled > barWidth {
		filled = barWidth
	}
	return fmt.Sprintf("[%s%s] %s/%s",
		strings.Repeat("█", filled),
		strings.Repeat(".", barWidth-filled),
		units.HumanSize(float64(p.done)),
		units.HumanSize(float64(p.total)))
}

func (p *Progress) draw() {
	_, _ = fmt.Fprintf(p.out, "\r%s", p.String())
}
