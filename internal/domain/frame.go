package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultFrameDigits is the zero-padding width of frame sequence indexes.
const DefaultFrameDigits = 5

// FramePattern describes how the capture pipeline names numbered frames:
// Prefix + zero-padded index + Ext, e.g. "frame_00042.jpg".
type FramePattern struct {
	Prefix string
	Ext    string
	Digits int
}

// NewFramePattern returns a pattern with the default padding width.
func NewFramePattern(prefix, ext string) FramePattern {
	return FramePattern{Prefix: prefix, Ext: ext, Digits: DefaultFrameDigits}
}

func (p FramePattern) digits() int {
	if p.Digits <= 0 {
		return DefaultFrameDigits
	}
	return p.Digits
}

// Name returns the file name for sequence index i.
func (p FramePattern) Name(i int) string {
	return fmt.Sprintf("%s%0*d%s", p.Prefix, p.digits(), i, p.Ext)
}

// Location returns the printf-style location template handed to the capture
// pipeline for directory dir.
func (p FramePattern) Location(dir string) string {
	return strings.TrimRight(dir, "/") + "/" + fmt.Sprintf("%s%%0%dd%s", p.Prefix, p.digits(), p.Ext)
}

// Parse extracts the sequence index from a file name. Names that do not
// match the pattern exactly are rejected. Indexes wider than the padding are
// accepted because the pipeline keeps counting past it.
func (p FramePattern) Parse(name string) (int, bool) {
	if len(name) < len(p.Prefix)+len(p.Ext) ||
		!strings.HasPrefix(name, p.Prefix) || !strings.HasSuffix(name, p.Ext) {
		return 0, false
	}
	num := name[len(p.Prefix) : len(name)-len(p.Ext)]
	if len(num) < p.digits() {
		return 0, false
	}
	n := 0
	for _, c := range num {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// FrameFile is one numbered image produced by the capture pipeline.
type FrameFile struct {
	Path    string
	Name    string
	Index   int
	ModTime time.Time
	Size    int64
}

// NewerThan reports whether f should win over other when picking the most
// recent frame: later modification time first, then higher index.
func (f FrameFile) NewerThan(other FrameFile) bool {
	if !f.ModTime.Equal(other.ModTime) {
		return f.ModTime.After(other.ModTime)
	}
	return f.Index > other.Index
}

// SameAs reports whether two observations refer to identical file content
// as far as metadata can tell.
func (f FrameFile) SameAs(other FrameFile) bool {
	return f.Name == other.Name && f.Size == other.Size && f.ModTime.Equal(other.ModTime)
}
