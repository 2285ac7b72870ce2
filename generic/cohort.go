package generic

import (
	"fmt"
	"strings"
)

// =============================================================================
// SUBJECT TERM - subject + semester + academic year (subject grades)
// =============================================================================

type SubjectTerm struct {
	SubjectID    string
	Semester     string
	AcademicYear string
}

func (c SubjectTerm) Columns() Row {
	return Row{
		"subject_id":    c.SubjectID,
		"semester":      c.Semester,
		"academic_year": c.AcademicYear,
	}
}

func (c SubjectTerm) Validate() error {
	if strings.TrimSpace(c.SubjectID) == "" {
		return Invalid("subject_id", "subject is required")
	}
	return ValidateTerm(c.Semester, c.AcademicYear)
}

func (c SubjectTerm) String() string {
	return fmt.Sprintf("%s/%s/%s", c.SubjectID, c.Semester, c.AcademicYear)
}

// ValidateTerm is shared by every semester-scoped cohort.
func ValidateTerm(semester, academicYear string) error {
	if semester != "1" && semester != "2" {
		return Invalid("semester", "semester must be 1 or 2")
	}
	if strings.TrimSpace(academicYear) == "" {
		return Invalid("academic_year", "academic year is required")
	}
	return nil
}

// =============================================================================
// DAY COHORT - a calendar date (attendance)
// =============================================================================

type DayCohort struct {
	Date Date
}

func (c DayCohort) Columns() Row {
	return Row{"date": c.Date.String()}
}

func (c DayCohort) Validate() error {
	if c.Date.IsZero() {
		return Invalid("date", "date is required")
	}
	return nil
}

func (c DayCohort) String() string { return c.Date.String() }

// =============================================================================
// BILLING PERIOD - category + month + year (payments)
// =============================================================================

type BillingPeriod struct {
	Category string
	Month    int
	Year     int
}

func (c BillingPeriod) Columns() Row {
	return Row{
		"category": c.Category,
		"month":    c.Month,
		"year":     c.Year,
	}
}

func (c BillingPeriod) Validate() error {
	if strings.TrimSpace(c.Category) == "" {
		return Invalid("category", "payment category is required")
	}
	if c.Month < 1 || c.Month > 12 {
		return Invalid("month", "month must be between 1 and 12")
	}
	if c.Year < 2000 || c.Year > 2100 {
		return Invalid("year", "year is out of range")
	}
	return nil
}

func (c BillingPeriod) String() string {
	return fmt.Sprintf("%s/%04d-%02d", c.Category, c.Year, c.Month)
}
