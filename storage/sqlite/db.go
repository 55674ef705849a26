// Package sqlite 提供基于 database/sql + modernc.org/sqlite 的审核记录仓储
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"qcaudit/errors"
)

// DriverName modernc 驱动注册名
const DriverName = "sqlite"

// Config 连接配置
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Open 打开数据库并建表。
// 内存库每个连接相互独立，因此内存 DSN 强制单连接。
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "打开 sqlite 失败")
	}

	if isMemoryDSN(dsn) {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "sqlite 不可用")
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// Migrate 幂等建表
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.WrapError(err, errors.ErrCodeDatabase, "sqlite 建表失败")
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS audits (
		id                   INTEGER PRIMARY KEY,
		version              INTEGER NOT NULL,
		created_at           INTEGER NOT NULL,
		updated_at           INTEGER NOT NULL,
		order_no             TEXT NOT NULL DEFAULT '',
		style_no             TEXT NOT NULL DEFAULT '',
		customer_id          TEXT NOT NULL DEFAULT '',
		customer_name        TEXT NOT NULL DEFAULT '',
		created_by           TEXT NOT NULL DEFAULT '',
		inspection_day       TEXT NOT NULL DEFAULT '',
		inspection_ts        INTEGER NOT NULL DEFAULT 0,
		total_order_qty      INTEGER NOT NULL,
		presented_qty        INTEGER NOT NULL,
		aql_standard         TEXT NOT NULL,
		inspection_attempt   TEXT NOT NULL,
		sample_size_override INTEGER NOT NULL DEFAULT 0,
		sample_size          INTEGER NOT NULL,
		aql_critical         TEXT NOT NULL,
		aql_major            TEXT NOT NULL,
		aql_minor            TEXT NOT NULL,
		max_allowed_critical INTEGER NOT NULL,
		max_allowed_major    INTEGER NOT NULL,
		max_allowed_minor    INTEGER NOT NULL,
		critical_found       INTEGER NOT NULL,
		major_found          INTEGER NOT NULL,
		minor_found          INTEGER NOT NULL,
		result               TEXT NOT NULL,
		header_json          TEXT NOT NULL,
		size_checks_json     TEXT NOT NULL,
		measurements_json    TEXT NOT NULL,
		images_json          TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audits_listing ON audits (inspection_ts DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audits_result ON audits (result)`,
	`CREATE TABLE IF NOT EXISTS audit_defects (
		id          TEXT PRIMARY KEY,
		audit_id    INTEGER NOT NULL,
		seq         INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		severity    TEXT NOT NULL,
		count       INTEGER NOT NULL,
		photo       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_defects_audit ON audit_defects (audit_id, seq)`,
}
