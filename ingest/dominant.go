package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jing2uo/spt2db/calc"
	"github.com/jing2uo/spt2db/model"
)

type DominantReport struct {
	Files    int
	Dominant int
	Second   int
	Changed  int
}

// MarkDominant 在范围内重新计算主力/次主力标记, 只写回有变化的记录
func MarkDominant(ctx context.Context, env *Env, scope model.FileFilter) (*DominantReport, error) {
	f, _ := model.ViewFilter(model.ViewFilesValid)
	f = f.Merge(scope)
	f.HasStats = true
	f.SubIDNotIn = model.SyntheticSubIDs

	files, err := env.Meta.FindFiles(ctx, f)
	if err != nil {
		return nil, err
	}

	report := &DominantReport{Files: len(files)}
	for i, m := range calc.MarkDominant(files) {
		if m.Dominant {
			report.Dominant++
		}
		if m.Second {
			report.Second++
		}
		if files[i].IsDominant == m.Dominant && files[i].Is2ndDominant == m.Second {
			continue
		}

		flags := []model.UpdateOp{
			model.Set("is_dominant", m.Dominant),
			model.Set("is_2nd_dominant", m.Second),
		}
		if err := env.Meta.UpdateFile(ctx, m.Path, flags...); err != nil {
			return report, err
		}
		if err := markSplits(ctx, env, m.Path, flags); err != nil {
			return report, err
		}
		report.Changed++
	}

	env.Log.Info("dominant marked",
		zap.Int("files", report.Files),
		zap.Int("dominant", report.Dominant),
		zap.Int("second", report.Second),
		zap.Int("changed", report.Changed))
	return report, nil
}

// markSplits 已有的切片同步父文件的主力标记
func markSplits(ctx context.Context, env *Env, path string, flags []model.UpdateOp) error {
	splits, err := env.Meta.FindSplits(ctx, model.SplitFilter{FilePath: path})
	if err != nil {
		return err
	}
	for _, sr := range splits {
		if err := env.Meta.UpdateSplit(ctx, sr.ID, flags...); err != nil {
			return fmt.Errorf("mark split %s: %w", sr.ID, err)
		}
	}
	return nil
}
