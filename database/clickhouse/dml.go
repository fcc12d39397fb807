package clickhouse

import (
	"context"
	"fmt"
	"os"

	"github.com/jing2uo/spt2db/model"
	"github.com/jing2uo/spt2db/utils"
)

// tickInput 快照 parquet 的列定义, 与 artifact 落盘格式一致
const tickInput = "instrument String, market Int32, last_price Float64, last_volume Float64, hhmmss String, " +
	"update_time Int64, ask_price1 Float64, ask_volume1 Float64, bid_price1 Float64, bid_volume1 Float64, " +
	"open_interest Int64, turnover Float64, ave_price Float64, highest_price Float64, lowest_price Float64, " +
	"open_price Float64, main_id String, session String"

// ReplaceBars 轻量删除后分批写 CSV, 走 HTTP 导入
func (d *ClickHouseDriver) ReplaceBars(ctx context.Context, meta *model.TableMeta, instrument, level string, bars []model.KlineBar, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE instrument = ? AND level = ?", meta.TableName)
	if _, err := d.db.ExecContext(ctx, query, instrument, level); err != nil {
		return fmt.Errorf("clickhouse delete bars failed: %w", err)
	}

	for start := 0; start < len(bars); start += batchSize {
		end := min(start+batchSize, len(bars))
		if err := d.importBars(ctx, meta, bars[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (d *ClickHouseDriver) importBars(ctx context.Context, meta *model.TableMeta, bars []model.KlineBar) error {
	csvPath, err := utils.TempFile("kline-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(csvPath)

	w, err := utils.NewCSVWriter[model.KlineBar](csvPath)
	if err != nil {
		return err
	}
	if err := w.Write(bars); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	query := fmt.Sprintf("INSERT INTO %s FORMAT CSVWithNames", meta.TableName)
	if err := d.http.insert(ctx, query, nil, f, "text/csv"); err != nil {
		return fmt.Errorf("clickhouse insert %s failed: %w", meta.TableName, err)
	}
	return nil
}

func (d *ClickHouseDriver) QueryBars(ctx context.Context, meta *model.TableMeta, instrument, level string) ([]model.KlineBar, error) {
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

// ImportTicks 快照 parquet 原样上传, 由服务端 input() 解析后补上 file_path
func (d *ClickHouseDriver) ImportTicks(ctx context.Context, category, filePath, artifactAbs string) (int64, error) {
	meta, err := model.CategoryTable(category)
	if err != nil {
		return 0, err
	}
	if err := d.createTableInternal(meta); err != nil {
		return 0, fmt.Errorf("failed to create table %s: %w", meta.TableName, err)
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE file_path = ?", meta.TableName)
	if _, err := d.db.ExecContext(ctx, del, filePath); err != nil {
		return 0, fmt.Errorf("clickhouse delete ticks failed: %w", err)
	}

	f, err := os.Open(artifactAbs)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	query := fmt.Sprintf(`INSERT INTO %s
		SELECT
			{file_path:String},
			instrument,
			market,
			last_price,
			last_volume,
			fromUnixTimestamp64Nano(update_time, 'UTC'),
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
		FROM input('%s')
		FORMAT Parquet`, meta.TableName, tickInput)

	params := map[string]string{"file_path": filePath}
	if err := d.http.insert(ctx, query, params, f, "application/octet-stream"); err != nil {
		return 0, fmt.Errorf("clickhouse import ticks failed: %w", err)
	}

	var n int64
	count := fmt.Sprintf("SELECT toInt64(count()) FROM %s WHERE file_path = ?", meta.TableName)
	if err := d.db.GetContext(ctx, &n, count, filePath); err != nil {
		return 0, err
	}
	return n, nil
}
