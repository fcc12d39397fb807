package duckdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/jing2uo/spt2db/model"
)

const splitChunk = 200

func (d *DuckDBDriver) InsertSplits(ctx context.Context, recs []model.SplitRecord) error {
	if len(recs) == 0 {
		return nil
	}

	t := now()
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for start := 0; start < len(recs); start += splitChunk {
		end := min(start+splitChunk, len(recs))
		chunk := recs[start:end]

		var args []interface{}
		for i := range chunk {
			if chunk[i].CreatedAt.IsZero() {
				chunk[i].CreatedAt = t
			}
			if chunk[i].FeatureNum == 0 {
				chunk[i].FeatureNum = int64(len(chunk[i].Features))
			}
			args = append(args, insertArgs(model.TableSplits, &chunk[i])...)
		}
		if _, err := tx.ExecContext(ctx, insertSQL(model.TableSplits, len(chunk), ""), args...); err != nil {
			return fmt.Errorf("failed to insert splits: %w", err)
		}

		for i := range chunk {
			for seq, name := range chunk[i].Features {
				feat := model.SplitFeature{SplitID: chunk[i].ID, Seq: int64(seq + 1), Name: name}
				if _, err := tx.ExecContext(ctx, insertSQL(model.TableSplitFeatures, 1, ""),
					insertArgs(model.TableSplitFeatures, &feat)...); err != nil {
					return fmt.Errorf("failed to insert feature %s: %w", name, err)
				}
			}
		}
	}

	return tx.Commit()
}

func (d *DuckDBDriver) FindSplits(ctx context.Context, f model.SplitFilter) ([]model.SplitRecord, error) {
	w := splitWhere(f)
	query := fmt.Sprintf("SELECT s.* FROM %s s%s ORDER BY s.file_path, s.day, s.session%s",
		model.TableSplits.TableName, w.sql(), limitSQL(f.Limit))

	var recs []model.SplitRecord
	if err := d.db.SelectContext(ctx, &recs, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to query splits: %w", err)
	}
	if err := d.attachFeatures(ctx, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (d *DuckDBDriver) attachFeatures(ctx context.Context, recs []model.SplitRecord) error {
	if len(recs) == 0 {
		return nil
	}

	index := make(map[string]int, len(recs))
	ids := make([]string, len(recs))
	for i := range recs {
		index[recs[i].ID] = i
		ids[i] = recs[i].ID
	}

	for start := 0; start < len(ids); start += tagChunk {
		end := min(start+tagChunk, len(ids))

		query, args, err := sqlx.In(
			fmt.Sprintf("SELECT split_id, seq, name FROM %s WHERE split_id IN (?) ORDER BY split_id, seq",
				model.TableSplitFeatures.TableName),
			ids[start:end])
		if err != nil {
			return err
		}

		var feats []model.SplitFeature
		if err := d.db.SelectContext(ctx, &feats, query, args...); err != nil {
			return fmt.Errorf("failed to query features: %w", err)
		}
		for _, ft := range feats {
			i := index[ft.SplitID]
			recs[i].Features = append(recs[i].Features, ft.Name)
		}
	}
	return nil
}

// UpdateSplit PushFeature 追加到特征列表末尾, 同时刷新 feature_num / feature_time
func (d *DuckDBDriver) UpdateSplit(ctx context.Context, id string, ops ...model.UpdateOp) error {
	var sets []string
	var args []interface{}
	var features []string

	for _, op := range ops {
		switch o := op.(type) {
		case model.SetOp:
			if err := d.checkUpdatable(model.TableSplits, o.Field); err != nil {
				return err
			}
			sets = append(sets, o.Field+" = ?")
			args = append(args, plainValue(o.Value))
		case model.IncOp:
			if err := d.checkUpdatable(model.TableSplits, o.Field); err != nil {
				return err
			}
			sets = append(sets, fmt.Sprintf("%s = COALESCE(%s, 0) + ?", o.Field, o.Field))
			args = append(args, o.Delta)
		case model.PushFeatureOp:
			features = append(features, o.Name)
		default:
			return fmt.Errorf("unsupported update %T for %s", op, model.TableSplits.TableName)
		}
	}
	if len(features) > 0 {
		sets = append(sets, "feature_num = feature_num + ?", "feature_time = ?")
		args = append(args, int64(len(features)), now())
	}
	if len(sets) == 0 {
		return nil
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", model.TableSplits.TableName, strings.Join(sets, ", "))
	res, err := tx.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return fmt.Errorf("failed to update split %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("split %s: %w", id, model.ErrNotFound)
	}

	if len(features) > 0 {
		var seq int64
		q := fmt.Sprintf("SELECT COALESCE(max(seq), 0) FROM %s WHERE split_id = ?", model.TableSplitFeatures.TableName)
		if err := tx.GetContext(ctx, &seq, q, id); err != nil {
			return err
		}
		for _, name := range features {
			seq++
			feat := model.SplitFeature{SplitID: id, Seq: seq, Name: name}
			if _, err := tx.ExecContext(ctx, insertSQL(model.TableSplitFeatures, 1, ""),
				insertArgs(model.TableSplitFeatures, &feat)...); err != nil {
				return fmt.Errorf("failed to push feature %s: %w", name, err)
			}
		}
	}

	return tx.Commit()
}

func (d *DuckDBDriver) DeleteSplits(ctx context.Context, filePath string) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT count(*) FROM %s WHERE file_path = ?", model.TableSplits.TableName)
	if err := d.db.GetContext(ctx, &n, q, filePath); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := deleteSplitsTx(ctx, tx, filePath); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func deleteSplitsTx(ctx context.Context, tx *sqlx.Tx, filePath string) error {
	stmts := []string{
		fmt.Sprintf("DELETE FROM %s WHERE split_id IN (SELECT id FROM %s WHERE file_path = ?)",
			model.TableSplitFeatures.TableName, model.TableSplits.TableName),
		fmt.Sprintf("DELETE FROM %s WHERE file_path = ?", model.TableSplits.TableName),
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, filePath); err != nil {
			return fmt.Errorf("failed to delete splits of %s: %w", filePath, err)
		}
	}
	return nil
}
