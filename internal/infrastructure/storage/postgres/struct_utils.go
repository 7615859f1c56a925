package postgres

import (
	"reflect"
	"sync"
)

// column maps one "db" tag to the field index path inside a row struct.
// Embedded structs contribute their columns with a longer path.
type column struct {
	name  string
	index []int
}

var columnPlans sync.Map // reflect.Type -> []column

func plan(t reflect.Type) []column {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	if cached, ok := columnPlans.Load(t); ok {
		return cached.([]column)
	}

	var cols []column
	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, column{name: tag, index: f.Index})
	}
	columnPlans.Store(t, cols)
	return cols
}

// ExtractDBColumns lists the "db" columns of T in field order, embedded
// structs included. Repos use it for package-level select lists:
//
//	var batchColumns = ExtractDBColumns[batchRow]()
func ExtractDBColumns[T any]() []string {
	cols := plan(reflect.TypeOf((*T)(nil)).Elem())
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

// StructToMap returns column -> value for a row struct, suitable for
// squirrel SetMap. Non-struct input yields nil.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	cols := plan(rv.Type())
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		out[c.name] = rv.FieldByIndex(c.index).Interface()
	}
	return out
}
