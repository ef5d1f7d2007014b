package rowcodec

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDateMask is returned when a date mask is not one of the supported
// forms.
var ErrInvalidDateMask = errors.New("rowcodec: invalid date mask")

// DateMask renders timestamp columns.
type DateMask struct {
	mask   string
	format string
	fields int
}

// Masks understood by ParseDateMask.
const (
	MaskCompact = "YYYYMMDDHH24MISS"
	MaskISO     = "YYYY-MM-DD HH24:MI:SS"
)

// DefaultDateMask is the compact mask sessions start with.
var DefaultDateMask = DateMask{mask: MaskCompact, format: "%4d%02d%02d%02d%02d", fields: 5}

// ParseDateMask validates mask, case insensitively.
//
// The compact mask keeps its historic rendering which stops at minutes.
func ParseDateMask(mask string) (DateMask, error) {
	switch strings.ToUpper(strings.TrimSpace(mask)) {
	case MaskCompact:
		return DefaultDateMask, nil
	case MaskISO:
		return DateMask{mask: MaskISO, format: "%4d-%02d-%02d %02d:%02d:%02d", fields: 6}, nil
	default:
		return DateMask{}, fmt.Errorf("%w: %q", ErrInvalidDateMask, mask)
	}
}

// String returns the SQL form of the mask, e.g. for NLS_DATE_FORMAT.
func (m DateMask) String() string {
	if m.mask == "" {
		return DefaultDateMask.mask
	}
	return m.mask
}

// Format renders t through the mask.
func (m DateMask) Format(t time.Time) string {
	if m.format == "" {
		m = DefaultDateMask
	}
	fields := []any{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second()}
	return fmt.Sprintf(m.format, fields[:m.fields]...)
}
