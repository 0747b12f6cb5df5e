//go:build (darwin && (amd64 || arm64)) || (freebsd && (amd64 || arm64)) || (linux && (386 || amd64 || arm || arm64 || loong64 || ppc64le || riscv64 || s390x)) || (windows && (386 || amd64 || arm64))

package tagcache

import (
	"database/sql"

	_ "github.com/repomapper/repomap/internal/db"
	_ "modernc.org/sqlite"
)

const sqlDriverName = "sqlite"

func openSQL(dsn string) (*sql.DB, error) {
	return sql.Open(sqlDriverName, dsn)
}
