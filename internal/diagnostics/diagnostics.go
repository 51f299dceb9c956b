// Package diagnostics implements the graph's diagnostic substrate: an
// accumulating bag of errors and warnings, each carrying one or more
// source locations, promoted to a single fatal error once analysis
// completes.
//
// Diagnostic categories are typed kinds; callers match on Kind.Is(err)
// instead of substring-matching messages.
package diagnostics

import (
	"fmt"
	"io"
	"strings"

	goerrors "gopkg.in/src-d/go-errors.v1"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sdograph/internal/location"
	"sdograph/internal/sdoerr"
	"sdograph/internal/sdolog"
)

// Severity distinguishes errors (which make the graph unusable) from
// warnings (which are advisory).
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// Kinds. Every diagnostic category the analyzer can emit has one entry
// here, so analyzer code reports against a named Kind rather than an ad
// hoc fmt.Sprintf, and downstream callers can test provenance with Kind.Is.
var (
	KindUndefinedSymbol       = goerrors.NewKind("use of undefined symbol %q")
	KindNonConstantTimeField  = goerrors.NewKind("%s must be constant, found a non-constant expression")
	KindLookupOnNonTable      = goerrors.NewKind("APPLY_LOOKUP argument is not a LOOKUP_TABLE node")
	KindNonConstantArgument   = goerrors.NewKind("%s requires constant arguments")
	KindActiveInitialConstant = goerrors.NewKind("use of ACTIVE INITIAL while active equation is constant")
	KindStepAtOrBeforeInitial = goerrors.NewKind("STEP step-time is at or before INITIAL TIME")
	KindDelayConstantInput    = goerrors.NewKind("DELAY_FIXED input is constant; consider STEP instead")
	KindDelayNonConstantDelay = goerrors.NewKind("DELAY_FIXED delay is non-constant; only the initial delay is used")
)

// Diagnostic is one located error or warning.
type Diagnostic struct {
	Severity  Severity
	Err       error // always produced by a Kind above via Kind.New/Kind.Wrap
	Locations []location.FileLocation
}

// Message returns the diagnostic's text without location detail.
func (d Diagnostic) Message() string {
	return d.Err.Error()
}

// Bag is an accumulating collection of Diagnostics for one analysis run.
// Not safe for concurrent mutation, matching the single-threaded
// cooperative model of the builder and analyzer it serves.
type Bag struct {
	RunID    uuid.UUID
	errors   []Diagnostic
	warnings []Diagnostic
	log      *logrus.Logger
}

// New creates an empty Bag. log may be nil, in which case diagnostics are
// accumulated silently (sdolog.Discard).
func New(log *logrus.Logger) *Bag {
	return &Bag{RunID: uuid.New(), log: sdolog.Or(log)}
}

// Add records a diagnostic of the given severity at one or more locations.
func (b *Bag) Add(severity Severity, err error, locs ...location.FileLocation) {
	d := Diagnostic{Severity: severity, Err: err, Locations: locs}
	switch severity {
	case Error:
		b.errors = append(b.errors, d)
		b.log.WithFields(logrus.Fields{
			"run_id":    b.RunID,
			"severity":  "error",
			"locations": len(locs),
		}).Error(err.Error())
	default:
		b.warnings = append(b.warnings, d)
		b.log.WithFields(logrus.Fields{
			"run_id":    b.RunID,
			"severity":  "warning",
			"locations": len(locs),
		}).Warn(err.Error())
	}
}

// Errorf is a convenience for Add(Error, ...) building the error from a Kind.
func (b *Bag) Errorf(kind *goerrors.Kind, locs []location.FileLocation, args ...interface{}) {
	b.Add(Error, kind.New(args...), locs...)
}

// Warnf is a convenience for Add(Warning, ...) building the error from a Kind.
func (b *Bag) Warnf(kind *goerrors.Kind, locs []location.FileLocation, args ...interface{}) {
	b.Add(Warning, kind.New(args...), locs...)
}

// HasErrors is constant-time.
func (b *Bag) HasErrors() bool { return len(b.errors) > 0 }

// HasWarnings is constant-time.
func (b *Bag) HasWarnings() bool { return len(b.warnings) > 0 }

// Errors returns the accumulated error diagnostics, in order of first
// encounter.
func (b *Bag) Errors() []Diagnostic { return b.errors }

// Warnings returns the accumulated warning diagnostics, in order of first
// encounter.
func (b *Bag) Warnings() []Diagnostic { return b.warnings }

// Report formats diagnostics to w as:
//
//	<severity>: <msg>
//	 ... at <filename>:<line>.<col>-<line>.<col>
//
// one block per diagnostic, filtered by the showErrors/showWarnings flags.
func (b *Bag) Report(w io.Writer, showErrors, showWarnings bool) {
	write := func(d Diagnostic) {
		fmt.Fprint(w, sdoerr.Format(d.Severity.String(), d.Err, d.Locations...))
	}
	if showErrors {
		for _, d := range b.errors {
			write(d)
		}
	}
	if showWarnings {
		for _, d := range b.warnings {
			write(d)
		}
	}
}

// ReportString is Report rendered to a string, for callers that want the
// text without managing an io.Writer (e.g. embedding in a FatalError).
func (b *Bag) ReportString(showErrors, showWarnings bool) string {
	var sb strings.Builder
	b.Report(&sb, showErrors, showWarnings)
	return sb.String()
}

// FatalError is returned by Fatal when the bag has accumulated one or more
// errors. It carries the full report so a caller that only logs err.Error()
// still sees every diagnostic, not just the first.
type FatalError struct {
	RunID  uuid.UUID
	Report string
	cause  error
}

func (f *FatalError) Error() string {
	return fmt.Sprintf("analysis failed (run %s):\n%s", f.RunID, f.Report)
}

func (f *FatalError) Unwrap() error { return f.cause }

// Fatal aggregates every accumulated error into a single error via
// go-multierror, wraps it with a stack trace via pkg/errors, and returns a
// *FatalError carrying the full textual report. Returns nil if the bag has
// no errors (warnings alone never promote to fatal).
func (b *Bag) Fatal() error {
	if !b.HasErrors() {
		return nil
	}
	var merr *multierror.Error
	for _, d := range b.errors {
		merr = multierror.Append(merr, d.Err)
	}
	cause := errors.WithStack(merr.ErrorOrNil())
	b.log.WithField("run_id", b.RunID).Error("analysis has fatal diagnostics")
	return &FatalError{
		RunID:  b.RunID,
		Report: b.ReportString(true, true),
		cause:  cause,
	}
}
