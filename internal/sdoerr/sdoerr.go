// Package sdoerr supplies the formatting half of diagnostic reporting,
// independent of diagnostics.Bag's accumulation logic, so a single located
// error can be rendered the same way outside of a full analysis run —
// e.g. a one-shot interactive evaluation echoing a syntax error back
// before any Diagnostics bag exists.
package sdoerr

import (
	"fmt"
	"strings"

	"sdograph/internal/location"
)

// Format renders one error at zero or more locations as:
//
//	<severity>: <msg>
//	 ... at <file>:<line>.<col>-<line>.<col>
//
// matching diagnostics.Bag.Report's per-diagnostic block exactly, so the
// two code paths never drift into two different report formats.
func Format(severity string, err error, locs ...location.FileLocation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", severity, err.Error())
	for _, loc := range locs {
		fmt.Fprintf(&sb, " ... at %s\n", loc.String())
	}
	return sb.String()
}

// FormatError renders an error as a "error: ..." block.
func FormatError(err error, locs ...location.FileLocation) string {
	return Format("error", err, locs...)
}

// FormatWarning renders an error as a "warning: ..." block.
func FormatWarning(err error, locs ...location.FileLocation) string {
	return Format("warning", err, locs...)
}
