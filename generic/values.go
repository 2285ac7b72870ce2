package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Stores hand back whatever their driver scans: string, []byte, int64,
// float64, time.Time or decimal.Decimal. These helpers normalise them.

// AsString renders a scanned value as a string. nil becomes "".
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case RecordID:
		return string(x)
	case StudentID:
		return string(x)
	case ActorID:
		return string(x)
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return Timestamp(x)
	case Date:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// AsDecimal converts a scanned numeric value. Unparseable values are zero.
func AsDecimal(v any) decimal.Decimal {
	switch x := v.(type) {
	case decimal.Decimal:
		return x
	case int:
		return decimal.NewFromInt(int64(x))
	case int64:
		return decimal.NewFromInt(x)
	case float64:
		return decimal.NewFromFloat(x)
	case nil:
		return decimal.Zero
	default:
		d, err := decimal.NewFromString(AsString(x))
		if err != nil {
			return decimal.Zero
		}
		return d
	}
}

// AsTime parses an RFC3339 column. Returns nil for NULL or garbage.
func AsTime(v any) *time.Time {
	switch x := v.(type) {
	case time.Time:
		return &x
	case nil:
		return nil
	}
	t, err := time.Parse(time.RFC3339, AsString(v))
	if err != nil {
		return nil
	}
	return &t
}

// SameValue compares two column values loosely, so a decimal written by
// the core matches the string a driver scans back.
func SameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	da, aNum := numeric(a)
	db, bNum := numeric(b)
	if aNum && bNum {
		return da.Equal(db)
	}
	return AsString(a) == AsString(b)
}

func numeric(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case float64:
		return decimal.NewFromFloat(x), true
	}
	return decimal.Zero, false
}
