// Package database provides SQLite connection management and schema
// migrations for the identity store.
//
// # Design
//
//   - Single-writer connection pool: SQLite serialises writes, so the
//     pool is capped at one open connection. Token rotation transactions
//     therefore never deadlock against each other.
//   - WAL mode: readers (token lookups, claim resolution) see a
//     consistent snapshot and are never blocked by an in-flight write.
//   - Migrations: SQL files are embedded into the binary and applied in
//     version order, each in its own transaction.
//
// # Usage
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
