package duckdb

import (
	"context"
	"fmt"

	"github.com/jing2uo/spt2db/model"
)

func (d *DuckDBDriver) ReplaceBars(ctx context.Context, meta *model.TableMeta, instrument, level string, bars []model.KlineBar, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf("DELETE FROM %s WHERE instrument = ? AND level = ?", meta.TableName)
	if _, err := tx.ExecContext(ctx, query, instrument, level); err != nil {
		return fmt.Errorf("duckdb delete bars failed: %w", err)
	}

	for start := 0; start < len(bars); start += batchSize {
		end := min(start+batchSize, len(bars))
		chunk := bars[start:end]

		args := make([]interface{}, 0, len(chunk)*len(meta.Columns))
		for i := range chunk {
			args = append(args, insertArgs(meta, &chunk[i])...)
		}
		if _, err := tx.ExecContext(ctx, insertSQL(meta, len(chunk), ""), args...); err != nil {
			return fmt.Errorf("duckdb insert bars failed: %w", err)
		}
	}

	return tx.Commit()
}

func (d *DuckDBDriver) QueryBars(ctx context.Context, meta *model.TableMeta, instrument, level string) ([]model.KlineBar, error) {
	query := fmt.Sprintf(
		"SELECT * FROM %s WHERE instrument = ? AND level = ? ORDER BY trading_time ASC",
		meta.TableName,
	)

	var results []model.KlineBar
	if err := d.db.SelectContext(ctx, &results, query, instrument, level); err != nil {
		return nil, fmt.Errorf("failed to query bars %s %s: %w", instrument, level, err)
	}
	return results, nil
}

// ImportTicks 直接用 read_parquet 读快照, 先清掉同一文件的旧数据
func (d *DuckDBDriver) ImportTicks(ctx context.Context, category, filePath, artifactAbs string) (int64, error) {
	meta, err := model.CategoryTable(category)
	if err != nil {
		return 0, err
	}
	if err := d.createTableInternal(meta); err != nil {
		return 0, err
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	del := fmt.Sprintf("DELETE FROM %s WHERE file_path = ?", meta.TableName)
	if _, err := tx.ExecContext(ctx, del, filePath); err != nil {
		return 0, fmt.Errorf("duckdb delete ticks failed: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		SELECT
			? AS file_path,
			instrument,
			market,
			last_price,
			last_volume,
			make_timestamp(update_time // 1000) AS update_time,
			ask_price1,
			ask_volume1,
			bid_price1,
			bid_volume1,
			open_interest,
			turnover,
			ave_price,
			highest_price,
			lowest_price,
			open_price,
			session
		FROM read_parquet(%s)
	`, meta.TableName, quoteLiteral(artifactAbs))

	res, err := tx.ExecContext(ctx, query, filePath)
	if err != nil {
		return 0, fmt.Errorf("duckdb import ticks failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
