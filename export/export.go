/*
Package export turns stored rows into labelled, human-readable tables.

PURPOSE:
  Administrators download grades, payments, attendance and leave requests
  as spreadsheets. The transform here is pure: it picks each entity's
  columns in a fixed order, prints headers and status values in the
  requested language, and renders scores and amounts without float noise.
  The same package holds the localized toast messages the API returns.

USAGE:
  svc := export.NewService(gateway)
  table, err := svc.Export(ctx, generic.EntityPayment, generic.Key{"month": 8}, language.Indonesian)
  err = export.WriteCSV(w, table)

SEE ALSO:
  - labels.go: Column and status dictionaries, language negotiation
  - messages.go: Toast catalog
*/
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/language"

	"github.com/warp/records-engine/academic"
	"github.com/warp/records-engine/attendance"
	"github.com/warp/records-engine/finance"
	"github.com/warp/records-engine/generic"
	"github.com/warp/records-engine/permission"
)

// Table is a labelled export ready for CSV.
type Table struct {
	Entity  generic.EntityType
	Headers []string
	Rows    [][]string
}

// tables maps each exportable entity to its storage table.
var tables = map[generic.EntityType]string{
	generic.EntityGrade:        academic.TableGrades,
	generic.EntityTahfidzGrade: academic.TableTahfidzGrades,
	generic.EntityPayment:      finance.TablePayments,
	generic.EntityAttendance:   attendance.TableAttendance,
	generic.EntityPermission:   permission.TablePermissions,
}

// Transform maps stored rows onto the entity's labelled columns.
func Transform(entity generic.EntityType, rows []generic.Row, lang language.Tag) (Table, error) {
	cols := Columns(entity, lang)
	if cols == nil {
		return Table{}, generic.Invalid("entity", fmt.Sprintf("unknown entity %q", entity))
	}

	t := Table{Entity: entity, Headers: make([]string, len(cols))}
	for i, c := range cols {
		t.Headers[i] = c.Label
	}
	for _, r := range rows {
		line := make([]string, len(cols))
		for i, c := range cols {
			line[i] = cell(c.Key, r[c.Key], lang)
		}
		t.Rows = append(t.Rows, line)
	}
	return t, nil
}

func cell(key string, v any, lang language.Tag) string {
	switch key {
	case generic.ColumnStatus:
		return statusLabel(generic.AsString(v), lang)
	case "score", "amount", "paid_amount":
		if v == nil {
			return ""
		}
		return generic.AsDecimal(v).String()
	}
	return generic.AsString(v)
}

// WriteCSV writes the header line and every row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// numericFilters are compared as integers so every store matches them.
var numericFilters = map[string]bool{"month": true, "year": true, "juz": true}

// Filter turns column=value pairs into a selection key. Only columns the
// entity exports may be filtered on.
func Filter(entity generic.EntityType, params map[string]string) (generic.Key, error) {
	keys, ok := columnKeys[entity]
	if !ok {
		return nil, generic.Invalid("entity", fmt.Sprintf("unknown entity %q", entity))
	}
	allowed := make(map[string]bool, len(keys))
	for _, k := range keys {
		allowed[k] = true
	}

	key := generic.Key{}
	for name, value := range params {
		if !allowed[name] {
			return nil, generic.Invalid(name, "unknown filter")
		}
		if numericFilters[name] {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, generic.Invalid(name, "must be a whole number")
			}
			key[name] = n
			continue
		}
		key[name] = value
	}
	return key, nil
}

// =============================================================================
// SERVICE
// =============================================================================

// Service reads rows through a gateway and transforms them.
type Service struct {
	Gateway generic.Gateway
}

func NewService(gw generic.Gateway) *Service {
	return &Service{Gateway: gw}
}

// Export selects the entity's rows matching key (nil for all) and labels them.
func (s *Service) Export(ctx context.Context, entity generic.EntityType, key generic.Key, lang language.Tag) (Table, error) {
	table, ok := tables[entity]
	if !ok {
		return Table{}, generic.Invalid("entity", fmt.Sprintf("unknown entity %q", entity))
	}
	rows, err := s.Gateway.Select(ctx, table, key)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read %s: %w", table, err)
	}
	return Transform(entity, rows, lang)
}
