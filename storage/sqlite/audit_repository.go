package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"qcaudit/domain/audit"
	"qcaudit/domain/repository"
	"qcaudit/errors"
	"qcaudit/logging"
	"qcaudit/sampling"
)

const (
	auditsTable  = "audits"
	defectsTable = "audit_defects"
	dayLayout    = "2006-01-02"
)

var auditColumns = []string{
	"id", "version", "created_at", "updated_at",
	"total_order_qty", "presented_qty", "aql_standard", "inspection_attempt", "sample_size_override",
	"sample_size", "aql_critical", "aql_major", "aql_minor",
	"max_allowed_critical", "max_allowed_major", "max_allowed_minor",
	"critical_found", "major_found", "minor_found", "result",
	"header_json", "size_checks_json", "measurements_json", "images_json",
}

// AuditRepository 审核记录的 sqlite 仓储。
// 记录主体与缺陷条目分表存储，写入在同一事务内完成。
type AuditRepository struct {
	db     *sql.DB
	logger logging.Logger
	commit func(tx *sql.Tx) error
}

var _ repository.IAuditRepository = (*AuditRepository)(nil)

// NewAuditRepository 基于已打开的连接创建仓储
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logging.Component("storage.sqlite"),
		commit: (*sql.Tx).Commit,
	}
}

func (r *AuditRepository) Create(ctx context.Context, rec *audit.Record) error {
	if rec.Version != 0 {
		return repository.VersionConflict(rec.ID, 0, rec.Version)
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM "+auditsTable+" WHERE id = ?", rec.ID).Scan(&one)
		switch {
		case err == nil:
			return repository.AlreadyExists(rec.ID)
		case !stderrors.Is(err, sql.ErrNoRows):
			return errors.WrapError(err, errors.ErrCodeDatabase, "查询审核记录失败")
		}

		s := rec.Snapshot()
		s.Version = 1
		if err := insertAudit(ctx, tx, s); err != nil {
			return err
		}
		return writeDefects(ctx, tx, s.ID, s.Defects)
	})
	if err != nil {
		return err
	}
	// 事务提交成功后才推进调用方持有的版本号
	rec.BumpVersion()
	return nil
}

func (r *AuditRepository) Update(ctx context.Context, rec *audit.Record) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx, "SELECT version FROM "+auditsTable+" WHERE id = ?", rec.ID).Scan(&current)
		if stderrors.Is(err, sql.ErrNoRows) {
			return repository.NotFound(rec.ID)
		}
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeDatabase, "查询审核记录失败")
		}
		if current != rec.Version {
			return repository.VersionConflict(rec.ID, rec.Version, current)
		}

		s := rec.Snapshot()
		s.Version = rec.Version + 1
		res, err := updateAudit(ctx, tx, s, rec.Version)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return repository.VersionConflict(rec.ID, rec.Version, current)
		}
		return writeDefects(ctx, tx, s.ID, s.Defects)
	})
	if err != nil {
		return err
	}
	rec.BumpVersion()
	return nil
}

func (r *AuditRepository) GetByID(ctx context.Context, id int64) (*audit.Record, error) {
	query, args := newSelect(auditColumns...).From(auditsTable).Where("id = ?", id).Build()
	row := r.db.QueryRowContext(ctx, query, args...)
	s, err := scanAudit(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, repository.NotFound(id)
	}
	if err != nil {
		return nil, err
	}
	defects, err := r.loadDefects(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	s.Defects = defects[id]
	return audit.FromSnapshot(s)
}

func (r *AuditRepository) Delete(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+auditsTable+" WHERE id = ?", id)
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeDatabase, "删除审核记录失败")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return repository.NotFound(id)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+defectsTable+" WHERE audit_id = ?", id); err != nil {
			return errors.WrapError(err, errors.ErrCodeDatabase, "删除缺陷条目失败")
		}
		return nil
	})
}

func (r *AuditRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+auditsTable+" WHERE id = ?", id).Scan(&n); err != nil {
		return false, errors.WrapError(err, errors.ErrCodeDatabase, "查询审核记录失败")
	}
	return n > 0, nil
}

func (r *AuditRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+auditsTable).Scan(&n); err != nil {
		return 0, errors.WrapError(err, errors.ErrCodeDatabase, "统计审核记录失败")
	}
	return n, nil
}

// Query 过滤条件下推到 SQL，排序与内存实现一致
func (r *AuditRepository) Query(ctx context.Context, f repository.Filter) ([]*audit.Record, error) {
	b := newSelect(auditColumns...).From(auditsTable)
	if len(f.Results) > 0 {
		vals := make([]any, 0, len(f.Results))
		for _, res := range f.Results {
			vals = append(vals, string(res))
		}
		b.WhereIn("result", vals)
	}
	if f.CustomerID != "" {
		b.Where("customer_id = ?", f.CustomerID)
	}
	if !f.From.IsZero() {
		b.Where("inspection_day >= ?", f.From.Format(dayLayout))
	}
	if !f.To.IsZero() {
		b.Where("inspection_day <= ?", f.To.Format(dayLayout))
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		like := "%" + escapeLike(q) + "%"
		b.Where(`(LOWER(order_no) LIKE ? ESCAPE '\' OR LOWER(style_no) LIKE ? ESCAPE '\' OR LOWER(customer_name) LIKE ? ESCAPE '\' OR LOWER(created_by) LIKE ? ESCAPE '\')`,
			like, like, like, like)
	}
	query, args := b.OrderBy("inspection_ts DESC, id DESC").Limit(f.Limit).Offset(f.Offset).Build()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "查询审核记录失败")
	}
	var snaps []audit.Snapshot
	for rows.Next() {
		s, err := scanAudit(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		snaps = append(snaps, s)
	}
	// 单连接场景下须先释放结果集再查询条目
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "读取审核记录失败")
	}
	_ = rows.Close()

	ids := make([]int64, 0, len(snaps))
	for _, s := range snaps {
		ids = append(ids, s.ID)
	}
	defects, err := r.loadDefects(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*audit.Record, 0, len(snaps))
	for _, s := range snaps {
		s.Defects = defects[s.ID]
		rec, err := audit.FromSnapshot(s)
		if err != nil {
			r.logger.Error(ctx, "审核记录复核失败", logging.RecordID(s.ID), logging.Error(err))
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *AuditRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "开启事务失败")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := r.commit(tx); err != nil {
		_ = tx.Rollback()
		return errors.WrapError(err, errors.ErrCodeDatabase, "提交事务失败")
	}
	return nil
}

func (r *AuditRepository) loadDefects(ctx context.Context, ids []int64) (map[int64][]audit.DefectEntry, error) {
	out := make(map[int64][]audit.DefectEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	vals := make([]any, 0, len(ids))
	for _, id := range ids {
		vals = append(vals, id)
	}
	query, args := newSelect("audit_id", "id", "description", "severity", "count", "photo").
		From(defectsTable).WhereIn("audit_id", vals).OrderBy("audit_id, seq").Build()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "查询缺陷条目失败")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			auditID  int64
			e        audit.DefectEntry
			severity string
		)
		if err := rows.Scan(&auditID, &e.ID, &e.Description, &severity, &e.Count, &e.PhotoRef); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeDatabase, "读取缺陷条目失败")
		}
		e.Severity = audit.Severity(severity)
		out[auditID] = append(out[auditID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "读取缺陷条目失败")
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAudit(row rowScanner) (audit.Snapshot, error) {
	var (
		s                                   audit.Snapshot
		createdAt, updatedAt                int64
		standard, attempt, result           string
		headerJSON, sizeJSON, measJSON, img string
	)
	d := &s.Derived
	err := row.Scan(
		&s.ID, &s.Version, &createdAt, &updatedAt,
		&s.Inputs.TotalOrderQty, &s.Inputs.PresentedQty, &standard, &attempt, &s.Inputs.SampleSizeOverride,
		&d.SampleSize, &d.AQL.Critical, &d.AQL.Major, &d.AQL.Minor,
		&d.Limits.Critical, &d.Limits.Major, &d.Limits.Minor,
		&d.Found.Critical, &d.Found.Major, &d.Found.Minor, &result,
		&headerJSON, &sizeJSON, &measJSON, &img,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return s, err
	}
	if err != nil {
		return s, errors.WrapError(err, errors.ErrCodeDatabase, "读取审核记录失败")
	}
	s.Inputs.Standard = sampling.Standard(standard)
	s.Inputs.Attempt = audit.Attempt(attempt)
	d.Result = audit.Result(result)
	s.CreatedAt = fromNanos(createdAt)
	s.UpdatedAt = fromNanos(updatedAt)

	for _, part := range []struct {
		raw string
		dst any
	}{
		{headerJSON, &s.Header},
		{sizeJSON, &s.SizeChecks},
		{measJSON, &s.Measurements},
		{img, &s.Images},
	} {
		if err := json.Unmarshal([]byte(part.raw), part.dst); err != nil {
			return s, errors.WrapError(err, errors.ErrCodeDatabase, "解析审核记录失败")
		}
	}
	return s, nil
}

type auditRow struct {
	header, sizeChecks, measurements, images string
}

func encodeParts(s audit.Snapshot) (auditRow, error) {
	var out auditRow
	for _, part := range []struct {
		src any
		dst *string
	}{
		{s.Header, &out.header},
		{s.SizeChecks, &out.sizeChecks},
		{s.Measurements, &out.measurements},
		{s.Images, &out.images},
	} {
		raw, err := json.Marshal(part.src)
		if err != nil {
			return out, errors.WrapError(err, errors.ErrCodeInternal, "序列化审核记录失败")
		}
		*part.dst = string(raw)
	}
	return out, nil
}

// auditValues 与 auditColumns 顺序一致（不含 id、version）
func auditValues(s audit.Snapshot, parts auditRow) []any {
	d := s.Derived
	return []any{
		toNanos(s.CreatedAt), toNanos(s.UpdatedAt),
		s.Inputs.TotalOrderQty, s.Inputs.PresentedQty, string(s.Inputs.Standard), string(s.Inputs.Attempt), s.Inputs.SampleSizeOverride,
		d.SampleSize, d.AQL.Critical, d.AQL.Major, d.AQL.Minor,
		d.Limits.Critical, d.Limits.Major, d.Limits.Minor,
		d.Found.Critical, d.Found.Major, d.Found.Minor, string(d.Result),
		parts.header, parts.sizeChecks, parts.measurements, parts.images,
		s.Header.OrderNo, s.Header.StyleNo, s.Header.Customer.ID, s.Header.Customer.Name, s.Header.CreatedBy,
		s.Header.InspectionDate.Format(dayLayout), toNanos(s.Header.InspectionDate),
	}
}

var indexColumns = []string{"order_no", "style_no", "customer_id", "customer_name", "created_by", "inspection_day", "inspection_ts"}

func insertAudit(ctx context.Context, tx *sql.Tx, s audit.Snapshot) error {
	parts, err := encodeParts(s)
	if err != nil {
		return err
	}
	cols := append(append([]string{}, auditColumns...), indexColumns...)
	ph := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	args := append([]any{s.ID, s.Version}, auditValues(s, parts)...)
	query := "INSERT INTO " + auditsTable + " (" + strings.Join(cols, ", ") + ") VALUES (" + ph + ")"
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "写入审核记录失败")
	}
	return nil
}

func updateAudit(ctx context.Context, tx *sql.Tx, s audit.Snapshot, expected int64) (sql.Result, error) {
	parts, err := encodeParts(s)
	if err != nil {
		return nil, err
	}
	cols := append(append([]string{"version"}, auditColumns[2:]...), indexColumns...)
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		sets = append(sets, c+" = ?")
	}
	args := append([]any{s.Version}, auditValues(s, parts)...)
	args = append(args, s.ID, expected)
	query := "UPDATE " + auditsTable + " SET " + strings.Join(sets, ", ") + " WHERE id = ? AND version = ?"
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "更新审核记录失败")
	}
	return res, nil
}

func writeDefects(ctx context.Context, tx *sql.Tx, auditID int64, entries []audit.DefectEntry) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+defectsTable+" WHERE audit_id = ?", auditID); err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "清理缺陷条目失败")
	}
	if len(entries) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+defectsTable+" (id, audit_id, seq, description, severity, count, photo) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "准备缺陷写入失败")
	}
	defer stmt.Close()
	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, auditID, i, e.Description, string(e.Severity), e.Count, e.PhotoRef); err != nil {
			return errors.WrapError(err, errors.ErrCodeDatabase, "写入缺陷条目失败")
		}
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
