// Package database opens the service's SQLite file and applies its schema.
//
// The connection runs in WAL mode with a busy timeout and a single open
// connection, since the manager is the only writer. Migrations are embedded
// by the migrations package and applied in version order at startup.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns are nullable or have a default.
package database
