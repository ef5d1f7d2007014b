package rowcodec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/logging"
)

var (
	// ErrUnknownColumnType is returned under UnknownFail when a column has a
	// type the codec cannot render.
	ErrUnknownColumnType = errors.New("rowcodec: unknown column type")
	// ErrColumnCount is returned when a fetched row does not match the
	// column descriptors of the cursor.
	ErrColumnCount = errors.New("rowcodec: column count mismatch")
)

// UnknownPolicy selects what happens to columns tagged TagUnknown.
type UnknownPolicy int

const (
	// UnknownSkip logs the column and leaves it out of the row.
	UnknownSkip UnknownPolicy = iota
	// UnknownFail aborts decoding with ErrUnknownColumnType.
	UnknownFail
	// UnknownText renders the value with fmt.Sprint.
	UnknownText
)

// ParseUnknownPolicy accepts "skip", "fail" and "text".
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return UnknownSkip, nil
	case "fail":
		return UnknownFail, nil
	case "text":
		return UnknownText, nil
	default:
		return UnknownSkip, fmt.Errorf("rowcodec: invalid unknown column policy %q", s)
	}
}

func (p UnknownPolicy) String() string {
	switch p {
	case UnknownFail:
		return "fail"
	case UnknownText:
		return "text"
	default:
		return "skip"
	}
}

// Codec renders backend values into strings. A Codec is owned by one
// session and is not safe for concurrent use.
type Codec struct {
	mask      DateMask
	policy    UnknownPolicy
	onUnknown func(Column)
}

// Option configures a Codec.
type Option func(*Codec)

// WithDateMask sets the timestamp mask.
func WithDateMask(m DateMask) Option {
	return func(c *Codec) { c.mask = m }
}

// WithUnknownPolicy sets the policy for unrecognized column types.
func WithUnknownPolicy(p UnknownPolicy) Option {
	return func(c *Codec) { c.policy = p }
}

// WithUnknownHook registers fn to observe every unrecognized column.
func WithUnknownHook(fn func(Column)) Option {
	return func(c *Codec) { c.onUnknown = fn }
}

// New returns a codec using the compact date mask and the skip policy
// unless overridden.
func New(opts ...Option) *Codec {
	c := &Codec{mask: DefaultDateMask, policy: UnknownSkip}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetDateMask parses and installs mask. An invalid mask leaves the current
// one in place.
func (c *Codec) SetDateMask(mask string) error {
	m, err := ParseDateMask(mask)
	if err != nil {
		return err
	}
	c.mask = m
	return nil
}

// DateMask returns the installed mask.
func (c *Codec) DateMask() DateMask { return c.mask }

// Policy returns the unknown column policy.
func (c *Codec) Policy() UnknownPolicy { return c.policy }

// Decode converts one fetched row. values must line up with cols.
func (c *Codec) Decode(cols []Column, values []any) (domain.Row, error) {
	if len(cols) != len(values) {
		return nil, fmt.Errorf("%w: %d columns, %d values", ErrColumnCount, len(cols), len(values))
	}
	row := make(domain.Row, 0, len(cols))
	for i, col := range cols {
		v := values[i]
		if col.Tag == TagUnknown {
			s, keep, err := c.unknown(col, v)
			if err != nil {
				return nil, err
			}
			if keep {
				row = append(row, s)
			}
			continue
		}
		if v == nil {
			row = append(row, "")
			continue
		}
		s, err := c.render(col, v)
		if err != nil {
			return nil, fmt.Errorf("rowcodec: column %q: %w", col.Name, err)
		}
		row = append(row, s)
	}
	return row, nil
}

func (c *Codec) unknown(col Column, v any) (string, bool, error) {
	if c.onUnknown != nil {
		c.onUnknown(col)
	}
	switch c.policy {
	case UnknownFail:
		return "", false, fmt.Errorf("%w: column %q type %q", ErrUnknownColumnType, col.Name, col.DatabaseType)
	case UnknownText:
		if v == nil {
			return "", true, nil
		}
		return fmt.Sprint(v), true, nil
	default:
		logging.Op().Warn("skipping column of unsupported type",
			"column", col.Name, "type", col.DatabaseType)
		return "", false, nil
	}
}

func (c *Codec) render(col Column, v any) (string, error) {
	switch col.Tag {
	case TagText:
		return renderText(v), nil
	case TagInt16, TagInt32, TagInt64:
		return renderInteger(v)
	case TagNumeric:
		return renderNumeric(v)
	case TagTimestamp:
		return c.renderTimestamp(v)
	case TagBinary:
		return renderBinary(v), nil
	}
	return fmt.Sprint(v), nil
}

func renderText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func renderInteger(v any) (string, error) {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32, float64:
		return renderNumeric(x)
	case string:
		return strings.TrimSpace(x), nil
	case []byte:
		return strings.TrimSpace(string(x)), nil
	default:
		return "", fmt.Errorf("unexpected integer value %T", v)
	}
}

// renderNumeric collapses integral values to integer form and renders
// fractional ones with the shortest exact representation.
func renderNumeric(v any) (string, error) {
	switch x := v.(type) {
	case float64:
		return formatFloat(x, 64), nil
	case float32:
		return formatFloat(float64(x), 32), nil
	case string:
		return numericText(x), nil
	case []byte:
		return numericText(string(x)), nil
	default:
		return renderInteger(v)
	}
}

func formatFloat(f float64, bits int) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}

// numericText keeps the backend's own digits unless the value is integral.
func numericText(s string) string {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
	"20060102150405",
	"200601021504",
}

func (c *Codec) renderTimestamp(v any) (string, error) {
	switch x := v.(type) {
	case time.Time:
		return c.mask.Format(x), nil
	case string:
		return c.timestampText(x), nil
	case []byte:
		return c.timestampText(string(x)), nil
	default:
		return "", fmt.Errorf("unexpected timestamp value %T", v)
	}
}

// timestampText reformats a textual timestamp. Text that matches no known
// layout is passed through unchanged.
func (c *Codec) timestampText(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return c.mask.Format(t)
		}
	}
	return s
}

func renderBinary(v any) string {
	switch x := v.(type) {
	case []byte:
		return hex.EncodeToString(x)
	case string:
		if strings.HasPrefix(x, `\x`) {
			return strings.ToLower(x[2:])
		}
		return hex.EncodeToString([]byte(x))
	default:
		return fmt.Sprint(x)
	}
}
