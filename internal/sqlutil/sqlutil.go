// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sqlutil

import (
	"database/sql"
	"fmt"
)

// StatementList prepares a batch of SQL statements in one call, writing
// each prepared statement through the supplied pointer.
type StatementList []struct {
	Statement **sql.Stmt
	SQL       string
}

// Prepare the statements in the list, stopping at the first failure.
func (s StatementList) Prepare(db *sql.DB) error {
	for _, entry := range s {
		stmt, err := db.Prepare(entry.SQL)
		if err != nil {
			return fmt.Errorf("failed to prepare %q: %w", entry.SQL, err)
		}
		*entry.Statement = stmt
	}
	return nil
}

// TxStmt wraps an SQL statement in a transaction when one is supplied,
// so table methods work both inside and outside a transaction.
func TxStmt(transaction *sql.Tx, statement *sql.Stmt) *sql.Stmt {
	if transaction != nil {
		statement = transaction.Stmt(statement)
	}
	return statement
}

// EndTransaction commits the transaction when succeeded points at true,
// and rolls it back otherwise. Intended for use in a defer alongside a
// named success flag.
func EndTransaction(txn *sql.Tx, succeeded *bool) error {
	if *succeeded {
		return txn.Commit()
	}
	return txn.Rollback()
}
