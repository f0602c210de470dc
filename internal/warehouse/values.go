package warehouse

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type valueKind int

const (
	kindOther valueKind = iota
	kindNumeric
)

var numericTypes = []string{"INT", "DEC", "NUMERIC", "REAL", "FLOAT", "DOUBLE", "NUMBER", "SERIAL", "MONEY"}

func columnKinds(rows *sql.Rows, n int) []valueKind {
	kinds := make([]valueKind, n)
	types, err := rows.ColumnTypes()
	if err != nil || len(types) != n {
		return kinds
	}
	for i, t := range types {
		name := strings.ToUpper(t.DatabaseTypeName())
		for _, n := range numericTypes {
			if strings.Contains(name, n) {
				kinds[i] = kindNumeric
				break
			}
		}
	}
	return kinds
}

// normalizeValue converts a scanned driver value into nil, bool, string or
// json.Number so that rows survive a JSON round trip unchanged.
func normalizeValue(v any, kind valueKind) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return x
	case int64:
		return json.Number(strconv.FormatInt(x, 10))
	case int32:
		return json.Number(strconv.FormatInt(int64(x), 10))
	case int:
		return json.Number(strconv.Itoa(x))
	case uint64:
		return json.Number(strconv.FormatUint(x, 10))
	case float64:
		return floatValue(x)
	case float32:
		return floatValue(float64(x))
	case []byte:
		return textValue(string(x), kind)
	case string:
		return textValue(x, kind)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return textValue(x.String(), kind)
	default:
		return fmt.Sprint(x)
	}
}

func floatValue(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}

func textValue(s string, kind valueKind) any {
	if kind == kindNumeric && isJSONNumber(s) {
		return json.Number(s)
	}
	return s
}

func isJSONNumber(s string) bool {
	if s == "" {
		return false
	}
	if c := s[0]; c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid([]byte(s))
}
