// Package rowcodec converts backend rows into the uniform string rows every
// lookup consumes.
package rowcodec

import "strings"

// Tag is the normalized type of a result column.
type Tag int

const (
	TagUnknown Tag = iota
	TagText
	TagInt16
	TagInt32
	TagInt64
	TagNumeric
	TagTimestamp
	TagBinary
)

func (t Tag) String() string {
	switch t {
	case TagText:
		return "text"
	case TagInt16:
		return "int16"
	case TagInt32:
		return "int32"
	case TagInt64:
		return "int64"
	case TagNumeric:
		return "numeric"
	case TagTimestamp:
		return "timestamp"
	case TagBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// IsInteger reports whether the tag is one of the integer widths.
func (t Tag) IsInteger() bool {
	return t == TagInt16 || t == TagInt32 || t == TagInt64
}

// Column describes one column of an open cursor.
type Column struct {
	Name         string
	Tag          Tag
	DatabaseType string
	Nullable     bool
}

var typeNames = map[string]Tag{
	// character
	"CHAR":              TagText,
	"NCHAR":             TagText,
	"VARCHAR":           TagText,
	"VARCHAR2":          TagText,
	"NVARCHAR":          TagText,
	"NVARCHAR2":         TagText,
	"TEXT":              TagText,
	"TINYTEXT":          TagText,
	"MEDIUMTEXT":        TagText,
	"LONGTEXT":          TagText,
	"CLOB":              TagText,
	"NCLOB":             TagText,
	"LONG":              TagText,
	"LONG VARCHAR":      TagText,
	"CHARACTER":         TagText,
	"CHARACTER VARYING": TagText,
	"BPCHAR":            TagText,
	"NAME":              TagText,
	"ROWID":             TagText,
	"UROWID":            TagText,
	"ENUM":              TagText,
	"JSON":              TagText,
	// integers
	"SMALLINT":  TagInt16,
	"TINYINT":   TagInt16,
	"INT2":      TagInt16,
	"INT":       TagInt32,
	"INT4":      TagInt32,
	"INTEGER":   TagInt32,
	"MEDIUMINT": TagInt32,
	"BIGINT":    TagInt64,
	"INT8":      TagInt64,
	// ambiguous numeric
	"NUMBER":        TagNumeric,
	"NUMERIC":       TagNumeric,
	"DECIMAL":       TagNumeric,
	"FLOAT":         TagNumeric,
	"FLOAT4":        TagNumeric,
	"FLOAT8":        TagNumeric,
	"DOUBLE":        TagNumeric,
	"REAL":          TagNumeric,
	"BINARY_FLOAT":  TagNumeric,
	"BINARY_DOUBLE": TagNumeric,
	"IBFLOAT":       TagNumeric,
	"IBDOUBLE":      TagNumeric,
	// timestamps
	"DATE":                           TagTimestamp,
	"DATETIME":                       TagTimestamp,
	"TIMESTAMP":                      TagTimestamp,
	"TIMESTAMPTZ":                    TagTimestamp,
	"TIMESTAMP WITH TIME ZONE":       TagTimestamp,
	"TIMESTAMP WITH LOCAL TIME ZONE": TagTimestamp,
	"TIMESTAMPTZ_DTY":                TagTimestamp,
	"TIMESTAMPLTZ_DTY":               TagTimestamp,
	"TIMESTAMPDTY":                   TagTimestamp,
	// binary
	"RAW":       TagBinary,
	"LONG RAW":  TagBinary,
	"LONGRAW":   TagBinary,
	"BLOB":      TagBinary,
	"BYTEA":     TagBinary,
	"BINARY":    TagBinary,
	"VARBINARY": TagBinary,
	"TINYBLOB":  TagBinary,
	"LONGBLOB":  TagBinary,
}

// TagFor maps a driver reported database type name to a tag. Length and
// precision suffixes such as "VARCHAR(20)" or "NUMBER(10,2)" are ignored.
func TagFor(databaseType string) Tag {
	name := strings.ToUpper(strings.TrimSpace(databaseType))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	name = strings.TrimPrefix(name, "UNSIGNED ")
	if tag, ok := typeNames[name]; ok {
		return tag
	}
	return TagUnknown
}
