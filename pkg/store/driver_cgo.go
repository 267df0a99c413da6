//go:build !nocgo

package store

import (
	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registered as "sqlite3"
)

// sqlDriverName is the database/sql driver name to use for this build.
// Production builds use the cgo driver; pass -tags nocgo to fall back to
// the pure-Go driver in driver_nocgo.go.
const sqlDriverName = "sqlite3"
