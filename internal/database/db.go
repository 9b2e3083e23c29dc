package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Queryable is the union of the sqlx methods the stores require. Both
// *sqlx.DB and *sqlx.Tx satisfy this interface, allowing store methods
// to be composed inside or outside of a transaction.
type Queryable interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Rebind(query string) string
}

// JsonColumn wraps any JSON-serializable type so it can be stored in
// and scanned from a JSONB column. A NULL column scans to a nil inner
// value.
type JsonColumn[T any] struct {
	val *T
}

func NewJsonColumn[T any](val *T) JsonColumn[T] {
	return JsonColumn[T]{val: val}
}

func (j *JsonColumn[T]) Get() *T { return j.val }

func (j *JsonColumn[T]) Scan(src any) error {
	if src == nil {
		j.val = nil
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T in to JsonColumn", src)
	}

	val := new(T)
	if err := json.Unmarshal(raw, val); err != nil {
		return err
	}

	j.val = val
	return nil
}

func (j JsonColumn[T]) Value() (driver.Value, error) {
	if j.val == nil {
		return nil, nil
	}

	return json.Marshal(j.val)
}
