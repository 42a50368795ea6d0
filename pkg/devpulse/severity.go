// severity.go defines the closed set of failure severities and the reporting mask.

package devpulse

import (
	"fmt"
	"strings"
)

// Severity classifies a runtime failure. Values are single bits so that a set of
// severities can be expressed as a mask.
type Severity uint32

const (
	// SeverityFatal is an unrecoverable runtime error.
	SeverityFatal Severity = 1 << iota

	// SeverityWarning is a non-fatal runtime warning.
	SeverityWarning

	// SeverityParse is a failure to parse source or configuration at startup.
	SeverityParse

	// SeverityNotice flags something that may indicate a bug.
	SeverityNotice

	// SeverityCoreError is a fatal error raised while the host runtime boots.
	SeverityCoreError

	// SeverityCompileError is a fatal error raised while loading code.
	SeverityCompileError

	// SeverityError is a recoverable error.
	SeverityError

	// SeverityDeprecated flags use of a deprecated feature.
	SeverityDeprecated

	// SeverityUserWarning is a warning raised by application code.
	SeverityUserWarning

	// SeverityUserNotice is a notice raised by application code.
	SeverityUserNotice
)

// SeverityAll is the mask containing every severity.
const SeverityAll = SeverityFatal | SeverityWarning | SeverityParse | SeverityNotice |
	SeverityCoreError | SeverityCompileError | SeverityError | SeverityDeprecated |
	SeverityUserWarning | SeverityUserNotice

var severityNames = []struct {
	sev  Severity
	name string
}{
	{SeverityFatal, "fatal"},
	{SeverityWarning, "warning"},
	{SeverityParse, "parse"},
	{SeverityNotice, "notice"},
	{SeverityCoreError, "core_error"},
	{SeverityCompileError, "compile_error"},
	{SeverityError, "error"},
	{SeverityDeprecated, "deprecated"},
	{SeverityUserWarning, "user_warning"},
	{SeverityUserNotice, "user_notice"},
}

// IsFatal reports whether s is one of the severities that terminate the process.
func (s Severity) IsFatal() bool {
	switch s {
	case SeverityFatal, SeverityParse, SeverityCoreError, SeverityCompileError:
		return true
	}
	return false
}

// In reports whether every bit of s is set in mask.
func (s Severity) In(mask Severity) bool {
	return s != 0 && mask&s == s
}

// String returns the severity name, or a "|"-joined list for masks.
func (s Severity) String() string {
	if s == SeverityAll {
		return "all"
	}
	var names []string
	for _, n := range severityNames {
		if s&n.sev != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("severity(%d)", uint32(s))
	}
	return strings.Join(names, "|")
}

// ParseSeverityMask parses a comma separated list of severity names.
// "all" selects every severity; an empty string yields SeverityAll.
func ParseSeverityMask(s string) (Severity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SeverityAll, nil
	}

	var mask Severity
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if part == "all" {
			mask |= SeverityAll
			continue
		}
		found := false
		for _, n := range severityNames {
			if n.name == part {
				mask |= n.sev
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown severity %q", part)
		}
	}
	return mask, nil
}
