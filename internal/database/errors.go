package database

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451
	mysqlForeignKeyChild        = 1452
	mysqlCheckConstraintViolate = 3819
)

// IsConstraintError reports whether err is any constraint violation.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// IsUniqueConstraintError reports whether err is a duplicate key violation.
func IsUniqueConstraintError(err error) bool {
	return hasNumber(err, mysqlDuplicateEntry) || contains(err, "Error 1062")
}

// IsForeignKeyConstraintError reports whether err is a foreign key violation
// on either the parent or the child side.
func IsForeignKeyConstraintError(err error) bool {
	return hasNumber(err, mysqlForeignKeyParent, mysqlForeignKeyChild) ||
		contains(err, "Error 1451", "Error 1452")
}

// IsCheckConstraintError reports whether err is a CHECK constraint violation.
func IsCheckConstraintError(err error) bool {
	return hasNumber(err, mysqlCheckConstraintViolate) || contains(err, "Error 3819")
}

func hasNumber(err error, numbers ...uint16) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	for _, n := range numbers {
		if me.Number == n {
			return true
		}
	}
	return false
}

func contains(err error, substrs ...string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range substrs {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
