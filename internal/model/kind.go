package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the value category of a scalar property.
type Kind int

const (
	// KindString is the default for text, binary, enum and unknown SQL types.
	KindString Kind = iota
	// KindInt represents integer numeric types.
	KindInt
	// KindFloat represents floating-point and fixed-point numeric types.
	KindFloat
	// KindBool represents boolean types.
	KindBool
	// KindTime represents date and time types.
	KindTime
)

// KindForSQLType maps a SQL data type to a property kind. Size specifiers like
// (10,2) are ignored and matching is case-insensitive.
func KindForSQLType(sqlType string) Kind {
	if idx := strings.Index(sqlType, "("); idx != -1 {
		sqlType = sqlType[:idx]
	}
	switch strings.ToUpper(strings.TrimSpace(sqlType)) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT",
		"INTEGER", "BIGINT", "SERIAL", "BIT":
		return KindInt
	case "FLOAT", "DOUBLE", "DECIMAL", "NUMERIC":
		return KindFloat
	case "BOOL", "BOOLEAN":
		return KindBool
	case "DATE", "DATETIME", "TIMESTAMP":
		return KindTime
	default:
		return KindString
	}
}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Boolean"
	case KindTime:
		return "DateTime"
	default:
		return "String"
	}
}

// Parse converts a textual argument value into the Go value used in SQL args.
func (k Kind) Parse(raw string) (any, error) {
	switch k {
	case KindInt:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		return v, nil
	case KindFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", raw)
		}
		return v, nil
	case KindBool:
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q", raw)
		}
		return v, nil
	case KindTime:
		for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly} {
			if v, err := time.Parse(layout, raw); err == nil {
				return v, nil
			}
		}
		return nil, fmt.Errorf("invalid date/time %q", raw)
	default:
		return raw, nil
	}
}
