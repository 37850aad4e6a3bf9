package models

import "database/sql"

// DBTX is satisfied by both *sql.DB and *sql.Tx, so the accessors below can
// run inside or outside an explicit transaction.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}
