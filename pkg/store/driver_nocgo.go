//go:build nocgo

package store

import (
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registered as "sqlite"
)

// sqlDriverName is the database/sql driver name to use for this build.
const sqlDriverName = "sqlite"
