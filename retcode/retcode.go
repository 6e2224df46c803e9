/*Package retcode provides ReturnCode, an accumulating result carrying zero or
more errors and warnings.

Functions which configure, generate, or decode return a ReturnCode instead of
aborting at the first problem, so a caller sees every missing setting in one
pass.  A ReturnCode with errors means the call's outputs must not be trusted;
warnings never block processing.

	rc := module.Setup(geom, cfg)
	if rc.HasErrors() {
		return rc.Err()
	}
*/
package retcode

import (
	"errors"
	"strings"

	"go.uber.org/multierr"
)

// ReturnCode accumulates errors and warnings.  The zero value is an empty,
// successful result.
type ReturnCode struct {
	errs  []error
	warns []string
}

// New returns a ReturnCode holding the given errors, skipping nils
func New(errs ...error) ReturnCode {
	rc := ReturnCode{}
	for _, err := range errs {
		rc.AddError(err)
	}
	return rc
}

// AddError appends an error.  nil errors are ignored.
func (rc *ReturnCode) AddError(err error) {
	if err == nil {
		return
	}
	rc.errs = append(rc.errs, err)
}

// AddWarning appends a warning message
func (rc *ReturnCode) AddWarning(msg string) {
	rc.warns = append(rc.warns, msg)
}

// Append adds all errors and warnings of other to rc
func (rc *ReturnCode) Append(other ReturnCode) {
	rc.errs = append(rc.errs, other.errs...)
	rc.warns = append(rc.warns, other.warns...)
}

// HasErrors is true when at least one error has been recorded
func (rc ReturnCode) HasErrors() bool {
	return len(rc.errs) > 0
}

// HasWarnings is true when at least one warning has been recorded
func (rc ReturnCode) HasWarnings() bool {
	return len(rc.warns) > 0
}

// Errors returns a copy of the recorded errors
func (rc ReturnCode) Errors() []error {
	return append([]error(nil), rc.errs...)
}

// Warnings returns a copy of the recorded warnings
func (rc ReturnCode) Warnings() []string {
	return append([]string(nil), rc.warns...)
}

// Contains returns true if any recorded error matches target per errors.Is
func (rc ReturnCode) Contains(target error) bool {
	for _, err := range rc.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Err combines the recorded errors into one error, or nil if there are none
func (rc ReturnCode) Err() error {
	return multierr.Combine(rc.errs...)
}

// String lists errors then warnings, one per line
func (rc ReturnCode) String() string {
	var b strings.Builder
	for _, err := range rc.errs {
		b.WriteString("error: ")
		b.WriteString(err.Error())
		b.WriteByte('\n')
	}
	for _, w := range rc.warns {
		b.WriteString("warning: ")
		b.WriteString(w)
		b.WriteByte('\n')
	}
	return b.String()
}
