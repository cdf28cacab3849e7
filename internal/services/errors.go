package services

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation   = "23505"
	mysqlDuplicateEntry = 1062
)

// isUniqueConstraintError reports whether err is a uniqueness violation. The
// pair-key index on connections relies on this to close the race between the
// duplicate check and the insert, so it must recognise every supported
// driver.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		return pgErr.Code == pgUniqueViolation
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil {
		return myErr.Number == mysqlDuplicateEntry
	}

	// The sqlite driver surfaces constraint failures as plain text.
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"unique", "duplicate", "constraint"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
