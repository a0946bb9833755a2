package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects to the CMS database with one of the registered drivers
// ("sqlite", "postgres", "mysql").
func Open(driver, dsn string) (*sqlx.DB, error) {
	if driver == "sqlite" && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open content db: %w", err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping content db: %w", err)
	}
	return db, nil
}
