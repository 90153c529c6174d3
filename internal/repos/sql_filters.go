package repos

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/petuhovskiy/rollodrome/internal/models"
)

type Filter interface {
	Apply(query *gorm.DB) *gorm.DB
}

type WhereFilter struct {
	SQL  string
	Args []any
}

func (f WhereFilter) Apply(query *gorm.DB) *gorm.DB {
	return query.Where(f.SQL, f.Args...)
}

func FilterByNode(node string) WhereFilter {
	return WhereFilter{
		SQL:  "runs.node = ?",
		Args: []any{node},
	}
}

func FilterByPool(poolName string) WhereFilter {
	return WhereFilter{
		SQL:  "runs.pool_name = ?",
		Args: []any{poolName},
	}
}

func RawFilter(sql string) WhereFilter {
	return WhereFilter{
		SQL: sql,
	}
}

type MatrixFilterer struct {
	obj    any
	fields []string
}

func (f *MatrixFilterer) Apply(query *gorm.DB) *gorm.DB {
	var args []any
	for _, field := range f.fields {
		args = append(args, field)
	}
	return query.Where(f.obj, args...)
}

func RunMatrixFilter(run *models.Run, fields []string) *MatrixFilterer {
	return &MatrixFilterer{
		obj:    run,
		fields: fields,
	}
}

func MatrixFilters(run *models.Run, fields []string) ([]Filter, error) {
	var filters []Filter
	var runFields []string

	for _, field := range fields {
		switch {
		case strings.HasPrefix(field, "runs."):
			runFields = append(runFields, strings.TrimPrefix(field, "runs."))

		default:
			return nil, fmt.Errorf("unsupported field filter %q", field)
		}
	}

	if runFields != nil {
		if run == nil {
			return nil, fmt.Errorf("run fields filter requires run")
		}
		filters = append(filters, RunMatrixFilter(run, runFields))
	}

	return filters, nil
}
