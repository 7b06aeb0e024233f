package persistence

import (
	"errors"
	"slices"
	"strings"

	"github.com/erp/retailcore/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate is the row lock taken by the *ForUpdate finders. SQLite ignores
// it; there the single connection already serializes writers.
var forUpdate = clause.Locking{Strength: "UPDATE"}

// translateError maps gorm sentinels onto domain errors
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.ErrAlreadyExists
	}
	return err
}

// casResult turns the outcome of a version-guarded update into an error
func casResult(result *gorm.DB, what string) error {
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict.WithMessage(what + " was modified by another transaction")
	}
	return nil
}

// sortable is the ORDER BY whitelist of one listing. Anything outside it
// falls back to the default column, newest first.
type sortable struct {
	columns []string
	def     string
}

func newSortable(def string, columns ...string) sortable {
	return sortable{columns: append(columns, def), def: def}
}

var (
	saleSort        = newSortable("created_at", "id", "updated_at", "closed_at", "status", "customer_id", "total_amount", "total_paid_amount")
	shiftSort       = newSortable("opened_at", "id", "created_at", "closed_at", "status", "operator_id", "start_cash")
	accountSort     = newSortable("created_at", "id", "updated_at", "name", "type", "owner_type", "balance")
	operationSort   = newSortable("started_at", "id", "finished_at", "kind", "status")
	discrepancySort = newSortable("created_at", "id", "kind", "difference")
	sequenceSort    = newSortable("sequence")
)

func (s sortable) order(filter shared.Filter) clause.OrderByColumn {
	col := strings.TrimSpace(filter.OrderBy)
	if !slices.Contains(s.columns, col) {
		col = s.def
	}
	return clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: !ascending(filter.OrderDir)}
}

func ascending(dir string) bool {
	return strings.EqualFold(strings.TrimSpace(dir), "asc")
}

// paginate counts the rows matched by query, then loads one ordered page
// into dest. scopes apply to the page query only.
func paginate(query *gorm.DB, filter shared.Filter, sort sortable, dest any, scopes ...func(*gorm.DB) *gorm.DB) (int64, error) {
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, err
	}
	err := query.
		Scopes(scopes...).
		Order(sort.order(filter)).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(dest).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
