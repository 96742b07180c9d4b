// Package token defines source positions shared by every phase of the checker.
package token

import "fmt"

// Pos is a 1-based line/column position. The zero Pos means "unknown".
type Pos struct {
	Line   int
	Column int
}

func (p Pos) IsValid() bool { return p.Line > 0 }

// Before reports whether p sorts strictly before q.
func (p Pos) Before(q Pos) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Column < q.Column
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Loc is a half-open source range inside one file.
type Loc struct {
	File  string
	Start Pos
	End   Pos
}

func (l Loc) IsValid() bool { return l.File != "" && l.Start.IsValid() }

// Contains reports whether pos falls inside l. A Loc with no End is treated
// as a single point.
func (l Loc) Contains(pos Pos) bool {
	if !l.IsValid() || pos.Before(l.Start) {
		return false
	}
	end := l.End
	if !end.IsValid() {
		end = l.Start
	}
	return !end.Before(pos)
}

// Encloses reports whether other lies entirely within l.
func (l Loc) Encloses(other Loc) bool {
	if l.File != other.File {
		return false
	}
	return l.Contains(other.Start) && (!other.End.IsValid() || l.Contains(other.End))
}

// Less orders locations by file, then start, then end.
func (l Loc) Less(other Loc) bool {
	if l.File != other.File {
		return l.File < other.File
	}
	if l.Start != other.Start {
		return l.Start.Before(other.Start)
	}
	return l.End.Before(other.End)
}

// Span approximates the size of a location so that the innermost of two
// enclosing ranges can be picked.
func (l Loc) Span() int {
	end := l.End
	if !end.IsValid() {
		end = l.Start
	}
	return (end.Line-l.Start.Line)*10000 + (end.Column - l.Start.Column)
}

func (l Loc) String() string {
	if !l.IsValid() {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%s", l.File, l.Start)
}
