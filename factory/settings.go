/*
Package factory converts settings documents into cascade layers.

PURPOSE:
  HR keeps leave and payroll settings in a YAML (or JSON) file. The factory
  parses and validates that file and writes the layers to the settings
  repository, so seeding settings needs no code change.

DOCUMENT SCHEMA:

	defaults:
	  leaves:
	    cl_per_year: 12
	    reset_to_balance: 12
	    max_carry_forward: 3
	    el_mode: attendance
	    el_brackets:
	      - {min_days: 15, max_days: 31, el_earned: 0.5}
	      - {min_days: 25, max_days: 31, el_earned: 0.5}
	departments:
	  - department_id: eng
	    leaves: {cl_per_year: 18}
	  - department_id: eng
	    division_id: platform
	    overtime: {enabled: true, rate_multiplier: 1.5}

  Keys match the JSON tags of settings.Layer. Unknown keys are rejected so
  a typo never silently falls back to a default.

USAGE:

	f := factory.NewSettingsFactory()
	doc, err := f.LoadFile("settings.yaml")
	err = f.Apply(ctx, doc, repo)

SEE ALSO:
  - settings/types.go:   Layer and override types
  - settings/cascade.go: how layers are resolved
*/
package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/leave-ledger/settings"
)

// Format is a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension. Anything that is
// not .json is read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Document is a parsed settings file.
type Document struct {
	Defaults    *settings.Layer  `json:"defaults,omitempty"`
	Departments []settings.Layer `json:"departments,omitempty"`
}

// LayerWriter receives validated layers.
type LayerWriter interface {
	SetDefaults(ctx context.Context, layer *settings.Layer) error
	SetOverride(ctx context.Context, layer *settings.Layer) error
}

// =============================================================================
// SETTINGS FACTORY
// =============================================================================

type SettingsFactory struct{}

func NewSettingsFactory() *SettingsFactory {
	return &SettingsFactory{}
}

// LoadFile reads and parses a settings file.
func (f *SettingsFactory) LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	return f.Parse(data, FormatFromPath(path))
}

// Parse decodes and validates a document.
func (f *SettingsFactory) Parse(data []byte, format Format) (*Document, error) {
	raw := data
	if format == FormatYAML {
		var tree interface{}
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
		}
		// Layer types carry JSON tags; YAML goes through the same decoder.
		b, err := json.Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("failed to convert settings YAML: %w", err)
		}
		raw = b
	}

	doc := &Document{}
	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(doc); err != nil {
			return nil, fmt.Errorf("failed to parse settings document: %w", err)
		}
	}
	if err := f.Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Apply validates doc and writes every layer to w.
func (f *SettingsFactory) Apply(ctx context.Context, doc *Document, w LayerWriter) error {
	if err := f.Validate(doc); err != nil {
		return err
	}
	if doc.Defaults != nil {
		global := *doc.Defaults
		global.DepartmentID, global.DivisionID = "", ""
		if err := w.SetDefaults(ctx, &global); err != nil {
			return fmt.Errorf("write defaults: %w", err)
		}
	}
	for i := range doc.Departments {
		layer := doc.Departments[i]
		if err := w.SetOverride(ctx, &layer); err != nil {
			return fmt.Errorf("write override %s/%s: %w", layer.DepartmentID, layer.DivisionID, err)
		}
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError lists every problem found in a document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid settings document: " + strings.Join(e.Problems, "; ")
}

var ErrInvalidDocument = errors.New("invalid settings document")

func (e *ValidationError) Unwrap() error { return ErrInvalidDocument }

// Validate checks modes, ranges and layer keys.
func (f *SettingsFactory) Validate(doc *Document) error {
	if doc == nil {
		return &ValidationError{Problems: []string{"document is empty"}}
	}
	var v validator
	if doc.Defaults != nil {
		v.layer("defaults", doc.Defaults)
	}
	seen := map[[2]string]bool{}
	for i := range doc.Departments {
		l := &doc.Departments[i]
		where := fmt.Sprintf("departments[%d]", i)
		if l.DepartmentID == "" && l.DivisionID == "" {
			v.addf("%s: department_id or division_id is required", where)
		}
		key := [2]string{l.DepartmentID, l.DivisionID}
		if seen[key] {
			v.addf("%s: duplicate layer for %s/%s", where, l.DepartmentID, l.DivisionID)
		}
		seen[key] = true
		v.layer(where, l)
	}
	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}
	return nil
}

type validator struct {
	problems []string
}

func (v *validator) addf(format string, args ...interface{}) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) layer(where string, l *settings.Layer) {
	if lv := l.Leaves; lv != nil {
		v.leaves(where+".leaves", lv)
	}
	if lo := l.Loans; lo != nil {
		v.nonNegative(where+".loans.max_amount", lo.MaxAmount)
		v.nonNegative(where+".loans.interest_rate", lo.InterestRate)
		v.nonNegativeInt(where+".loans.max_installments", lo.MaxInstallments)
		v.nonNegativeInt(where+".loans.min_service_months", lo.MinServiceMonths)
	}
	if sa := l.SalaryAdvance; sa != nil {
		v.nonNegative(where+".salary_advance.max_percent_of_salary", sa.MaxPercentOfSalary)
		if sa.MaxPercentOfSalary != nil && sa.MaxPercentOfSalary.GreaterThan(hundred) {
			v.addf("%s.salary_advance.max_percent_of_salary: must not exceed 100", where)
		}
		v.nonNegativeInt(where+".salary_advance.max_requests_per_year", sa.MaxRequestsPerYear)
	}
	if p := l.Permissions; p != nil {
		v.nonNegativeInt(where+".permissions.max_per_month", p.MaxPerMonth)
		v.nonNegativeInt(where+".permissions.max_minutes_per_request", p.MaxMinutesPerRequest)
	}
	if o := l.Overtime; o != nil {
		v.nonNegative(where+".overtime.rate_multiplier", o.RateMultiplier)
		v.nonNegative(where+".overtime.max_hours_per_month", o.MaxHoursPerMonth)
		v.nonNegativeInt(where+".overtime.min_minutes", o.MinMinutes)
	}
	if ad := l.AttendanceDeduction; ad != nil {
		v.nonNegativeInt(where+".attendance_deduction.late_grace_minutes", ad.LateGraceMinutes)
		rules := []struct {
			name string
			rule *settings.DeductionRule
		}{{"late", ad.Late}, {"early_exit", ad.EarlyExit}, {"absent", ad.Absent}}
		for _, r := range rules {
			if r.rule != nil && (r.rule.AfterOccurrences < 0 || r.rule.DeductDays.IsNegative()) {
				v.addf("%s.attendance_deduction.%s: values must not be negative", where, r.name)
			}
		}
	}
}

func (v *validator) leaves(where string, lv *settings.LeaveOverride) {
	v.nonNegative(where+".cl_per_year", lv.CasualLeavePerYear)
	v.nonNegative(where+".reset_to_balance", lv.ResetToBalance)
	v.nonNegative(where+".max_carry_forward", lv.MaxCarryForward)
	v.nonNegative(where+".el_fixed_per_month", lv.ELFixedPerMonth)
	v.nonNegative(where+".el_monthly_cap", lv.ELMonthlyCap)
	v.nonNegativeInt(where+".el_probation_months", lv.ELProbationMonths)
	v.nonNegativeInt(where+".ccl_expiry_months", lv.CCLExpiryMonths)

	if lv.ResetMonth != nil && (*lv.ResetMonth < 1 || *lv.ResetMonth > 12) {
		v.addf("%s.reset_month: must be 1-12, got %d", where, *lv.ResetMonth)
	}
	if lv.ResetDay != nil && (*lv.ResetDay < 1 || *lv.ResetDay > 31) {
		v.addf("%s.reset_day: must be 1-31, got %d", where, *lv.ResetDay)
	}
	if lv.ELMode != nil && *lv.ELMode != settings.ELModeFixed && *lv.ELMode != settings.ELModeAttendance {
		v.addf("%s.el_mode: unknown mode %q", where, *lv.ELMode)
	}
	if lv.ELBrackets != nil {
		for i, b := range *lv.ELBrackets {
			if b.MinDays < 0 || b.MinDays > b.MaxDays {
				v.addf("%s.el_brackets[%d]: need 0 <= min_days <= max_days, got %d..%d", where, i, b.MinDays, b.MaxDays)
			}
			if b.Earned.IsNegative() {
				v.addf("%s.el_brackets[%d].el_earned: must not be negative", where, i)
			}
		}
	}
}

var hundred = decimal.NewFromInt(100)

func (v *validator) nonNegative(field string, d *decimal.Decimal) {
	if d != nil && d.IsNegative() {
		v.addf("%s: must not be negative, got %s", field, d)
	}
}

func (v *validator) nonNegativeInt(field string, n *int) {
	if n != nil && *n < 0 {
		v.addf("%s: must not be negative, got %d", field, *n)
	}
}
