/*
Package settings resolves the effective configuration for an employee.

PURPOSE:
  HR configures rules at three levels: a global default, a department-wide
  override, and a division-specific override inside a department. Any field
  left empty at one level is inherited from the next:

    division+department override
      -> department-wide override (division = "")
        -> global default
          -> hard-coded default

  Resolution is field by field: a division override that only sets
  cl_per_year still inherits every other leave rule from its department.

KEY CONCEPTS:
  - Layer:    one level of configuration; nil fields mean "inherit"
  - Cascade:  merges layers into fully-populated structs, one per category
  - Resolve:  the pure per-field merge used everywhere below

CATEGORIES:
  leaves, loans, salary_advance, permissions, overtime, attendance_deduction

SEE ALSO:
  - types.go:   override and resolved structs with hard defaults
  - cascade.go: category resolvers
*/
package settings

// Resolve returns *override if set, else *fallback if set, else hard.
func Resolve[T any](override, fallback *T, hard T) T {
	if override != nil {
		return *override
	}
	if fallback != nil {
		return *fallback
	}
	return hard
}

// First returns the first non-nil pointer.
func First[T any](values ...*T) *T {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// Ptr returns a pointer to v. Handy for building overrides in code and tests.
func Ptr[T any](v T) *T { return &v }
