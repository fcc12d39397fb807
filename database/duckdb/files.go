package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jing2uo/spt2db/model"
)

const tagChunk = 500

func now() time.Time {
	return time.Now().UTC()
}

func (d *DuckDBDriver) InsertFile(ctx context.Context, rec *model.FileRecord) (bool, error) {
	t := now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t
	}
	rec.UpdatedAt = t

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		insertSQL(model.TableFiles, 1, " ON CONFLICT DO NOTHING"),
		insertArgs(model.TableFiles, rec)...)
	if err != nil {
		return false, fmt.Errorf("failed to insert file %s: %w", rec.Path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	for _, tag := range rec.Tags {
		if err := addTag(ctx, tx, rec.Path, tag); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

func (d *DuckDBDriver) GetFile(ctx context.Context, path string) (*model.FileRecord, error) {
	var rec model.FileRecord
	query := fmt.Sprintf("SELECT f.* FROM %s f WHERE f.path = ?", model.TableFiles.TableName)
	if err := d.db.GetContext(ctx, &rec, query, path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("file %s: %w", path, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get file %s: %w", path, err)
	}

	recs := []model.FileRecord{rec}
	if err := d.attachTags(ctx, recs); err != nil {
		return nil, err
	}
	return &recs[0], nil
}

func (d *DuckDBDriver) FindFiles(ctx context.Context, f model.FileFilter) ([]model.FileRecord, error) {
	w := fileWhere(f)
	query := fmt.Sprintf("SELECT f.* FROM %s f%s ORDER BY f.path%s",
		model.TableFiles.TableName, w.sql(), limitSQL(f.Limit))

	var recs []model.FileRecord
	if err := d.db.SelectContext(ctx, &recs, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	if err := d.attachTags(ctx, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (d *DuckDBDriver) attachTags(ctx context.Context, recs []model.FileRecord) error {
	if len(recs) == 0 {
		return nil
	}

	index := make(map[string]int, len(recs))
	paths := make([]string, len(recs))
	for i := range recs {
		index[recs[i].Path] = i
		paths[i] = recs[i].Path
		recs[i].Tags = nil
	}

	for start := 0; start < len(paths); start += tagChunk {
		end := min(start+tagChunk, len(paths))

		query, args, err := sqlx.In(
			fmt.Sprintf("SELECT path, tag FROM %s WHERE path IN (?) ORDER BY path, tag", model.TableFileTags.TableName),
			paths[start:end])
		if err != nil {
			return err
		}

		var tags []model.FileTag
		if err := d.db.SelectContext(ctx, &tags, query, args...); err != nil {
			return fmt.Errorf("failed to query tags: %w", err)
		}
		for _, t := range tags {
			i := index[t.Path]
			recs[i].Tags = append(recs[i].Tags, t.Tag)
		}
	}
	return nil
}

func (d *DuckDBDriver) CountFiles(ctx context.Context, f model.FileFilter) (int64, error) {
	w := fileWhere(f)
	query := fmt.Sprintf("SELECT count(*) FROM %s f%s", model.TableFiles.TableName, w.sql())

	var n int64
	if err := d.db.GetContext(ctx, &n, query, w.args...); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}

func (d *DuckDBDriver) checkField(meta *model.TableMeta, field string) error {
	if !meta.HasColumn(field) {
		return fmt.Errorf("unknown field %q for %s", field, meta.TableName)
	}
	return nil
}

func (d *DuckDBDriver) DistinctFiles(ctx context.Context, field string, f model.FileFilter) ([]string, error) {
	if err := d.checkField(model.TableFiles, field); err != nil {
		return nil, err
	}

	w := fileWhere(f)
	w.add(fmt.Sprintf("f.%s IS NOT NULL", field))
	query := fmt.Sprintf("SELECT DISTINCT CAST(f.%s AS VARCHAR) AS k FROM %s f%s ORDER BY k",
		field, model.TableFiles.TableName, w.sql())

	var values []string
	if err := d.db.SelectContext(ctx, &values, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to query distinct %s: %w", field, err)
	}
	return values, nil
}

func (d *DuckDBDriver) CountFilesBy(ctx context.Context, field string, f model.FileFilter) ([]model.KeyCount, error) {
	if err := d.checkField(model.TableFiles, field); err != nil {
		return nil, err
	}

	w := fileWhere(f)
	query := fmt.Sprintf(
		"SELECT COALESCE(CAST(f.%s AS VARCHAR), '') AS k, count(*) AS n FROM %s f%s GROUP BY 1 ORDER BY 1",
		field, model.TableFiles.TableName, w.sql())

	var counts []model.KeyCount
	if err := d.db.SelectContext(ctx, &counts, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to count files by %s: %w", field, err)
	}
	return counts, nil
}

func (d *DuckDBDriver) CountTags(ctx context.Context, f model.FileFilter) ([]model.KeyCount, error) {
	w := fileWhere(f)
	query := fmt.Sprintf(
		"SELECT tg.tag AS k, count(*) AS n FROM %s tg JOIN %s f ON f.path = tg.path%s GROUP BY tg.tag ORDER BY tg.tag",
		model.TableFileTags.TableName, model.TableFiles.TableName, w.sql())

	var counts []model.KeyCount
	if err := d.db.SelectContext(ctx, &counts, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to count tags: %w", err)
	}
	return counts, nil
}

// UpdateFile 字段 set/inc 合并成一条 UPDATE, 标签逐条增删, 全部在一个事务内
func (d *DuckDBDriver) UpdateFile(ctx context.Context, path string, ops ...model.UpdateOp) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{now()}
	var addTags, pullTags []string

	for _, op := range ops {
		switch o := op.(type) {
		case model.SetOp:
			if err := d.checkUpdatable(model.TableFiles, o.Field); err != nil {
				return err
			}
			sets = append(sets, o.Field+" = ?")
			args = append(args, plainValue(o.Value))
		case model.IncOp:
			if err := d.checkUpdatable(model.TableFiles, o.Field); err != nil {
				return err
			}
			sets = append(sets, fmt.Sprintf("%s = COALESCE(%s, 0) + ?", o.Field, o.Field))
			args = append(args, o.Delta)
		case model.AddTagOp:
			addTags = append(addTags, o.Tag)
		case model.PullTagOp:
			pullTags = append(pullTags, o.Tag)
		default:
			return fmt.Errorf("unsupported update %T for %s", op, model.TableFiles.TableName)
		}
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf("UPDATE %s SET %s WHERE path = ?", model.TableFiles.TableName, strings.Join(sets, ", "))
	res, err := tx.ExecContext(ctx, query, append(args, path)...)
	if err != nil {
		return fmt.Errorf("failed to update file %s: %w", path, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("file %s: %w", path, model.ErrNotFound)
	}

	for _, tag := range pullTags {
		query := fmt.Sprintf("DELETE FROM %s WHERE path = ? AND tag = ?", model.TableFileTags.TableName)
		if _, err := tx.ExecContext(ctx, query, path, tag); err != nil {
			return fmt.Errorf("failed to pull tag %s: %w", tag, err)
		}
	}
	for _, tag := range addTags {
		if err := addTag(ctx, tx, path, tag); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DuckDBDriver) checkUpdatable(meta *model.TableMeta, field string) error {
	if err := d.checkField(meta, field); err != nil {
		return err
	}
	for _, pk := range meta.PrimaryKey {
		if pk == field {
			return fmt.Errorf("primary key %s of %s cannot be updated", field, meta.TableName)
		}
	}
	return nil
}

func addTag(ctx context.Context, tx *sqlx.Tx, path, tag string) error {
	query := fmt.Sprintf("INSERT INTO %s (path, tag) VALUES (?, ?) ON CONFLICT DO NOTHING", model.TableFileTags.TableName)
	if _, err := tx.ExecContext(ctx, query, path, tag); err != nil {
		return fmt.Errorf("failed to add tag %s: %w", tag, err)
	}
	return nil
}

// DeleteFile 连同标签和切片记录一起删除; 快照文件由 ingest.DeleteFile 先行删除
func (d *DuckDBDriver) DeleteFile(ctx context.Context, path string) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteSplitsTx(ctx, tx, path); err != nil {
		return err
	}
	stmts := []string{
		fmt.Sprintf("DELETE FROM %s WHERE path = ?", model.TableFileTags.TableName),
		fmt.Sprintf("DELETE FROM %s WHERE path = ?", model.TableFiles.TableName),
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, path); err != nil {
			return fmt.Errorf("failed to delete file %s: %w", path, err)
		}
	}
	return tx.Commit()
}

func (d *DuckDBDriver) ClaimSplit(ctx context.Context, path string, ttl time.Duration) (bool, error) {
	t := now()
	query := fmt.Sprintf(`
		UPDATE %s SET split_state = 'splitting', split_claimed_at = ?
		WHERE path = ? AND (split_state = '' OR split_claimed_at IS NULL OR split_claimed_at < ?)
	`, model.TableFiles.TableName)

	res, err := d.db.ExecContext(ctx, query, t, path, t.Add(-ttl))
	if err != nil {
		// 并发事务改同一行时 DuckDB 报冲突, 视为被别人占用
		if strings.Contains(strings.ToLower(err.Error()), "conflict") {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim %s: %w", path, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	if _, err := d.GetFile(ctx, path); err != nil {
		return false, err
	}
	return false, nil
}

func (d *DuckDBDriver) ReleaseSplit(ctx context.Context, path string) error {
	query := fmt.Sprintf("UPDATE %s SET split_state = '', split_claimed_at = NULL WHERE path = ?",
		model.TableFiles.TableName)
	if _, err := d.db.ExecContext(ctx, query, path); err != nil {
		return fmt.Errorf("failed to release %s: %w", path, err)
	}
	return nil
}

func (d *DuckDBDriver) ArtifactRefs(ctx context.Context) ([]model.ArtifactRef, error) {
	query := fmt.Sprintf(`
		SELECT zip_path, path AS owner, false AS is_split FROM %s WHERE zip_path IS NOT NULL
		UNION ALL
		SELECT zip_path, id AS owner, true AS is_split FROM %s
	`, model.TableFiles.TableName, model.TableSplits.TableName)

	var refs []model.ArtifactRef
	if err := d.db.SelectContext(ctx, &refs, query); err != nil {
		return nil, fmt.Errorf("failed to query artifact refs: %w", err)
	}
	return refs, nil
}
