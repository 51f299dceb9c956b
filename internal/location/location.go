// Package location carries source-range values through the expression
// graph. A Location is a pure value type: it owns nothing and is copied
// alongside every node usage and diagnostic it annotates rather than
// referenced by pointer.
package location

import "fmt"

// Location is a span within a single (unnamed) source file.
type Location struct {
	FirstLine   int
	FirstColumn int
	LastLine    int
	LastColumn  int
}

// Span builds a Location from explicit endpoints.
func Span(firstLine, firstColumn, lastLine, lastColumn int) Location {
	return Location{
		FirstLine:   firstLine,
		FirstColumn: firstColumn,
		LastLine:    lastLine,
		LastColumn:  lastColumn,
	}
}

// Point builds a zero-width Location at a single line/column.
func Point(line, column int) Location {
	return Span(line, column, line, column)
}

func (l Location) String() string {
	return fmt.Sprintf("%d.%d-%d.%d", l.FirstLine, l.FirstColumn, l.LastLine, l.LastColumn)
}

// FileLocation pairs a Location with the file it was read from.
type FileLocation struct {
	File string
	Location
}

// In attaches a filename to a Location.
func In(file string, loc Location) FileLocation {
	return FileLocation{File: file, Location: loc}
}

func (f FileLocation) String() string {
	return fmt.Sprintf("%s:%s", f.File, f.Location.String())
}
