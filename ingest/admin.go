package ingest

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jing2uo/spt2db/model"
)

// DelZip 删除记录的快照并清理空目录, 重置快照字段, 返回释放的字节数
func DelZip(ctx context.Context, env *Env, path string) (int64, error) {
	rec, err := env.Meta.GetFile(ctx, path)
	if err != nil {
		return 0, err
	}

	var freed int64
	if rec.ZipPath != nil {
		if info, err := os.Stat(env.Artifacts.Abs(*rec.ZipPath)); err == nil {
			freed = info.Size()
		}
		if err := env.Artifacts.Remove(*rec.ZipPath); err != nil {
			return 0, fmt.Errorf("remove artifact %s: %w", *rec.ZipPath, err)
		}
	}
	err = env.Meta.UpdateFile(ctx, path,
		model.Set("zip_path", nil),
		model.Set("zip_line_num", int64(0)),
	)
	return freed, err
}

// DeleteFile 删除文件记录, 连同它和全部切片的快照; 先删快照再删记录, 返回删掉的快照数
// 删快照中途失败时记录保留, 由 check 报告悬空引用
func DeleteFile(ctx context.Context, env *Env, path string) (int, error) {
	rec, err := env.Meta.GetFile(ctx, path)
	if err != nil {
		return 0, err
	}
	splits, err := env.Meta.FindSplits(ctx, model.SplitFilter{FilePath: path})
	if err != nil {
		return 0, err
	}

	zips := make([]string, 0, len(splits)+1)
	for _, sr := range splits {
		zips = append(zips, sr.ZipPath)
	}
	if rec.ZipPath != nil {
		zips = append(zips, *rec.ZipPath)
	}

	for i, zip := range zips {
		if err := env.Artifacts.Remove(zip); err != nil {
			return i, fmt.Errorf("remove artifact %s: %w", zip, err)
		}
	}
	if err := env.Meta.DeleteFile(ctx, path); err != nil {
		return len(zips), err
	}

	env.Log.Info("file deleted", zap.String("path", path), zap.Int("artifacts", len(zips)))
	return len(zips), nil
}

// TagFiles 给范围内的文件加上或摘掉一个标签, 返回处理的文件数
func TagFiles(ctx context.Context, env *Env, filter model.FileFilter, tag string, pull bool) (int, error) {
	if !knownTag(tag) {
		return 0, fmt.Errorf("unknown tag %q", tag)
	}

	recs, err := env.Meta.FindFiles(ctx, filter)
	if err != nil {
		return 0, err
	}

	op := model.AddTag(tag)
	if pull {
		op = model.PullTag(tag)
	}
	for i := range recs {
		if err := env.Meta.UpdateFile(ctx, recs[i].Path, op); err != nil {
			return i, err
		}
	}

	env.Log.Info("tagged files",
		zap.String("tag", tag),
		zap.Bool("pull", pull),
		zap.Int("files", len(recs)))
	return len(recs), nil
}

func knownTag(tag string) bool {
	for _, t := range model.KnownTags {
		if t == tag {
			return true
		}
	}
	return false
}

type StatsReport struct {
	Total      int64
	ByCategory []model.KeyCount
	ByTag      []model.KeyCount
	WaitImport int64
	Valid      int64
}

func Stats(ctx context.Context, env *Env, scope model.FileFilter) (*StatsReport, error) {
	var (
		r   StatsReport
		err error
	)

	if r.Total, err = env.Meta.CountFiles(ctx, scope); err != nil {
		return nil, err
	}
	if r.ByCategory, err = env.Meta.CountFilesBy(ctx, "category", scope); err != nil {
		return nil, err
	}
	if r.ByTag, err = env.Meta.CountTags(ctx, scope); err != nil {
		return nil, err
	}

	wait, _ := model.ViewFilter(model.ViewFilesWait)
	if r.WaitImport, err = env.Meta.CountFiles(ctx, wait.Merge(scope)); err != nil {
		return nil, err
	}
	valid, _ := model.ViewFilter(model.ViewFilesValid)
	if r.Valid, err = env.Meta.CountFiles(ctx, valid.Merge(scope)); err != nil {
		return nil, err
	}
	return &r, nil
}
