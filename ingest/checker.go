package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jing2uo/spt2db/model"
)

type CheckReport struct {
	Artifacts int
	Records   int
	// 记录指向的快照不存在
	Missing []model.ArtifactRef
	// 磁盘上没有记录引用的快照
	Orphans []string

	RemovedOrphans int
	ClearedRefs    int
}

func (r *CheckReport) OK() bool {
	return len(r.Missing) == 0 && len(r.Orphans) == 0
}

// Checker 核对元数据和快照目录
type Checker struct {
	*Env
}

func NewChecker(env *Env) *Checker {
	return &Checker{Env: env}
}

// Check fix 为 true 时删除孤儿文件, 并清掉文件记录上悬空的 zip_path
func (c *Checker) Check(ctx context.Context, fix bool) (*CheckReport, error) {
	refs, err := c.Meta.ArtifactRefs(ctx)
	if err != nil {
		return nil, err
	}
	files, err := c.Artifacts.List()
	if err != nil {
		return nil, err
	}

	report := &CheckReport{Artifacts: len(files), Records: len(refs)}

	referenced := make(map[string]bool, len(refs))
	for _, ref := range refs {
		referenced[ref.ZipPath] = true
		if !c.Artifacts.Exists(ref.ZipPath) {
			report.Missing = append(report.Missing, ref)
		}
	}
	for _, f := range files {
		if !referenced[f] {
			report.Orphans = append(report.Orphans, f)
		}
	}

	if !fix {
		return report, nil
	}

	for _, f := range report.Orphans {
		if err := c.Artifacts.Remove(f); err != nil {
			return report, fmt.Errorf("remove orphan %s: %w", f, err)
		}
		report.RemovedOrphans++
	}
	for _, ref := range report.Missing {
		// 分片记录没有可清的字段, 只报告
		if ref.Split {
			continue
		}
		if err := c.Meta.UpdateFile(ctx, ref.Owner,
			model.Set("zip_path", nil),
			model.Set("zip_line_num", nil),
		); err != nil {
			return report, err
		}
		report.ClearedRefs++
	}

	c.Log.Info("check fixed",
		zap.Int("removed_orphans", report.RemovedOrphans),
		zap.Int("cleared_refs", report.ClearedRefs))
	return report, nil
}
