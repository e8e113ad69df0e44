package repository

import (
	"errors"
	"strings"

	pulse_errors "pulse-chat/pkg/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// sqlite reports constraint failures as plain text
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// translate maps driver errors onto the service error kinds.
func translate(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pulse_errors.NotFound(notFound)
	case isUniqueViolation(err):
		return pulse_errors.Conflict("already exists")
	default:
		return err
	}
}

// notDeleted hides soft-deleted messages. Every read path goes through it.
func notDeleted(db *gorm.DB) *gorm.DB {
	return db.Where("messages.is_deleted = ?", false)
}

func paginate(page, limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = 50
		}
		return db.Offset((page - 1) * limit).Limit(limit)
	}
}

// Expressions the GIN search indexes are built on; queries must repeat them
// verbatim for postgres to use the index.
const (
	messageSearchVector = "to_tsvector('simple', coalesce(content, ''))"
	groupSearchVector   = "to_tsvector('simple', name || ' ' || coalesce(description, ''))"
)

// matchText filters rows matching q. Postgres matches whole words through
// the indexed tsvector; other dialects fall back to a substring LIKE over cols.
func matchText(q, vector string, cols ...string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if db.Dialector.Name() == "postgres" {
			return db.Where(vector+" @@ plainto_tsquery('simple', ?)", strings.TrimSpace(q))
		}
		pattern := containsPattern(q)
		conds := make([]string, len(cols))
		args := make([]any, len(cols))
		for i, col := range cols {
			conds[i] = "LOWER(" + col + ") LIKE ? ESCAPE '\\'"
			args[i] = pattern
		}
		return db.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a case-insensitive LIKE pattern for use with
// "LOWER(col) LIKE ? ESCAPE '\'".
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(q))) + "%"
}
