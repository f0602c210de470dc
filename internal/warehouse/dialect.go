package warehouse

import (
	"fmt"
	"strings"
)

// Engine identifies the relational engine behind a Warehouse.
type Engine string

const (
	EngineMySQL    Engine = "mysql"
	EnginePostgres Engine = "postgres"
	EngineSQLite   Engine = "sqlite"
)

// ParseEngine maps a configured driver name to an Engine.
func ParseEngine(name string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql", "doris", "mariadb":
		return EngineMySQL, nil
	case "postgres", "postgresql", "pgx":
		return EnginePostgres, nil
	case "sqlite", "sqlite3":
		return EngineSQLite, nil
	default:
		return "", fmt.Errorf("warehouse: unsupported driver %q", name)
	}
}

// DriverName is the database/sql driver registered for the engine.
func (e Engine) DriverName() string {
	switch e {
	case EnginePostgres:
		return "pgx"
	case EngineSQLite:
		return "sqlite"
	default:
		return "mysql"
	}
}

// DialectName is the SQL flavour named in generation prompts.
func (e Engine) DialectName() string {
	switch e {
	case EnginePostgres:
		return "PostgreSQL"
	case EngineSQLite:
		return "SQLite"
	default:
		return "MySQL"
	}
}

// ListColumnsQuery returns a parameterised catalog query yielding
// (name, type, comment) for one table in ordinal order.
func (e Engine) ListColumnsQuery() string {
	switch e {
	case EnginePostgres:
		return `SELECT a.attname, format_type(a.atttypid, a.atttypmod),
       COALESCE(col_description(a.attrelid, a.attnum), '')
FROM pg_attribute a
WHERE a.attrelid = to_regclass($1) AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`
	case EngineSQLite:
		return `SELECT name, type, '' FROM pragma_table_info(?) ORDER BY cid`
	default:
		return `SELECT COLUMN_NAME, COLUMN_TYPE, COLUMN_COMMENT
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`
	}
}

// TableCommentQuery returns a parameterised query for a table-level comment,
// or "" when the engine has none.
func (e Engine) TableCommentQuery() string {
	switch e {
	case EnginePostgres:
		return `SELECT COALESCE(obj_description(to_regclass($1), 'pg_class'), '')`
	case EngineMySQL:
		return `SELECT TABLE_COMMENT FROM information_schema.TABLES
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`
	default:
		return ""
	}
}
