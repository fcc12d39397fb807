package cmd

import (
	"context"
	"fmt"

	"github.com/jing2uo/spt2db/ingest"
	"github.com/jing2uo/spt2db/utils"
	"github.com/jing2uo/spt2db/workflow"
)

// Check 核对快照目录与元数据, fix 时删除孤儿并清理悬空引用
func Check(ctx context.Context, opts Options, fix bool) error {
	s, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer s.Close()

	args := &workflow.TaskArgs{Extra: map[string]interface{}{"fix": fix}}
	return runTasks(ctx, s, []string{workflow.TaskCheck.Name}, args)
}

// Tag 给范围内的文件加上或摘掉标签
func Tag(ctx context.Context, opts Options, scope Scope, tag string, pull bool) error {
	s, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := ingest.TagFiles(ctx, s.env, scope.Filter(), tag, pull)
	if err != nil {
		return err
	}
	action := "添加"
	if pull {
		action = "移除"
	}
	fmt.Printf("🏷️  %s标签 %s: %d 个文件\n", action, tag, n)
	return nil
}

// DelZip 删除指定文件的快照并重置记录
func DelZip(ctx context.Context, opts Options, paths []string) error {
	s, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer s.Close()

	var total int64
	for _, p := range paths {
		freed, err := ingest.DelZip(ctx, s.env, p)
		if err != nil {
			return fmt.Errorf("failed to delete artifact of %s: %w", p, err)
		}
		total += freed
		fmt.Printf("🗑️  %s (%s)\n", p, utils.FormatBytes(freed))
	}
	fmt.Printf("✅ 共释放 %s\n", utils.FormatBytes(total))
	return nil
}

// Delete 删除文件记录和它的全部快照
func Delete(ctx context.Context, opts Options, paths []string) error {
	s, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, p := range paths {
		n, err := ingest.DeleteFile(ctx, s.env, p)
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
		fmt.Printf("🗑️  %s (%d 个快照)\n", p, n)
	}
	return nil
}

// Stats 打印元数据统计
func Stats(ctx context.Context, opts Options, scope Scope) error {
	s, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := ingest.Stats(ctx, s.env, scope.Filter())
	if err != nil {
		return err
	}

	fmt.Printf("📁 文件总数 %d, 有效 %d, 待转换 %d\n", r.Total, r.Valid, r.WaitImport)
	fmt.Println("📂 按品种:")
	for _, kc := range r.ByCategory {
		fmt.Printf("   %-8s %d\n", kc.Key, kc.Count)
	}
	fmt.Println("🏷️  按标签:")
	for _, kc := range r.ByTag {
		fmt.Printf("   %-13s %d\n", kc.Key, kc.Count)
	}
	return nil
}
