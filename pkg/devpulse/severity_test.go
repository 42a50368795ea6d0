package devpulse

import "testing"

func TestSeverity_IsFatal(t *testing.T) {
	fatal := []Severity{SeverityFatal, SeverityParse, SeverityCoreError, SeverityCompileError}
	for _, s := range fatal {
		if !s.IsFatal() {
			t.Errorf("%v.IsFatal() = false, want true", s)
		}
	}

	nonFatal := []Severity{SeverityWarning, SeverityNotice, SeverityError, SeverityDeprecated, SeverityUserWarning, SeverityUserNotice}
	for _, s := range nonFatal {
		if s.IsFatal() {
			t.Errorf("%v.IsFatal() = true, want false", s)
		}
	}
}

func TestSeverity_In(t *testing.T) {
	mask := SeverityWarning | SeverityError
	if !SeverityWarning.In(mask) {
		t.Error("warning should be in mask")
	}
	if SeverityNotice.In(mask) {
		t.Error("notice should not be in mask")
	}
	if Severity(0).In(SeverityAll) {
		t.Error("zero severity should never be reported")
	}
}

func TestParseSeverityMask(t *testing.T) {
	tests := []struct {
		input   string
		want    Severity
		wantErr bool
	}{
		{"", SeverityAll, false},
		{"all", SeverityAll, false},
		{"warning", SeverityWarning, false},
		{"Warning, core_error", SeverityWarning | SeverityCoreError, false},
		{"error,,notice", SeverityError | SeverityNotice, false},
		{"bogus", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSeverityMask(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSeverityMask(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSeverityMask(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSeverity_String(t *testing.T) {
	if got := SeverityAll.String(); got != "all" {
		t.Errorf("SeverityAll.String() = %q", got)
	}
	if got := (SeverityWarning | SeverityError).String(); got != "warning|error" {
		t.Errorf("mask String() = %q", got)
	}
}
