package main

// Drivers selectable with the driver setting.
import (
	_ "github.com/go-sql-driver/mysql" // mysql
	_ "github.com/lib/pq"              // postgres
	_ "github.com/mattn/go-sqlite3"    // sqlite3 (cgo)
	_ "modernc.org/sqlite"             // sqlite
)
