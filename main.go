package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jing2uo/spt2db/cmd"
	"github.com/jing2uo/spt2db/utils"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:           "spt2db",
		Short:         "Import futures spt tick files, split sessions and build kline",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	var (
		opts  cmd.Options
		scope cmd.Scope
		force bool
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "", "yaml 配置文件路径")
	pf.StringVar(&opts.RawRoot, "raw", "", "原始 spt 目录, 覆盖配置")
	pf.StringVar(&opts.ArtifactRoot, "artifacts", "", "快照输出目录, 覆盖配置")
	pf.StringVar(&opts.MetaDSN, "dbpath", "", "元数据 DuckDB 文件路径, 覆盖配置")
	pf.StringVar(&opts.KlineType, "kline-db", "", "K 线库类型 duckdb | clickhouse")
	pf.StringVar(&opts.KlineDSN, "kline-dsn", "", "K 线库连接串")
	pf.IntVar(&opts.Concurrency, "workers", 0, "并发数, 0 使用配置")
	pf.StringVar(&opts.LogLevel, "log-level", "", "日志级别 debug | info | warn | error")

	addScope := func(c *cobra.Command) {
		c.Flags().IntVar(&scope.Market, "market", 0, "交易所编号")
		c.Flags().StringVar(&scope.Category, "category", "", "品种, 如 rb")
		c.Flags().StringVar(&scope.Instrument, "instrument", "", "合约, 如 rb2405")
		c.Flags().StringVar(&scope.Year, "year", "", "年份 YYYY")
		c.Flags().StringVar(&scope.Month, "month", "", "月份 YYYYMM")
		c.Flags().StringVar(&scope.Day, "day", "", "日期 YYYYMMDD")
		c.Flags().IntVar(&scope.Limit, "limit", 0, "最多处理的文件数")
	}

	var importCmd = &cobra.Command{
		Use:   "import",
		Short: "Discover raw spt files, register and convert them",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Import(c.Context(), opts, scope, force)
		},
	}

	var convertCmd = &cobra.Command{
		Use:   "convert [path...]",
		Short: "Re-convert registered files into artifacts",
		RunE: func(c *cobra.Command, args []string) error {
			scope.Paths = args
			return cmd.Convert(c.Context(), opts, scope, force)
		},
	}

	var splitCmd = &cobra.Command{
		Use:   "split [path...]",
		Short: "Split artifacts by trading day and session",
		RunE: func(c *cobra.Command, args []string) error {
			scope.Paths = args
			return cmd.Split(c.Context(), opts, scope, force)
		},
	}

	var levels string
	var exportTicks bool
	var klineCmd = &cobra.Command{
		Use:   "kline",
		Short: "Resample artifacts into kline bars",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Kline(c.Context(), opts, scope, levels, exportTicks)
		},
	}

	var dominantCmd = &cobra.Command{
		Use:   "dominant",
		Short: "Mark dominant and second dominant contracts",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Dominant(c.Context(), opts, scope)
		},
	}

	var fix bool
	var checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Reconcile artifact directory with metadata",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Check(c.Context(), opts, fix)
		},
	}

	var tag string
	var pull bool
	var tagCmd = &cobra.Command{
		Use:   "tag [path...]",
		Short: "Add or remove a tag on files",
		RunE: func(c *cobra.Command, args []string) error {
			scope.Paths = args
			return cmd.Tag(c.Context(), opts, scope, tag, pull)
		},
	}

	var delZipCmd = &cobra.Command{
		Use:   "del-zip path...",
		Short: "Delete artifacts of the given files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.DelZip(c.Context(), opts, args)
		},
	}

	var deleteCmd = &cobra.Command{
		Use:   "delete path...",
		Short: "Delete file records together with their artifacts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Delete(c.Context(), opts, args)
		},
	}

	var statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print metadata statistics",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Stats(c.Context(), opts, scope)
		},
	}

	var cronCmd = &cobra.Command{
		Use:   "cron",
		Short: "Cron for import, split, dominant, kline and check",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Cron(c.Context(), opts, scope, fix)
		},
	}

	for _, c := range []*cobra.Command{importCmd, convertCmd, splitCmd, klineCmd, dominantCmd, tagCmd, statsCmd, cronCmd} {
		addScope(c)
	}
	for _, c := range []*cobra.Command{importCmd, convertCmd, splitCmd} {
		c.Flags().BoolVar(&force, "force", false, "忽略已有状态重新处理")
	}

	klineCmd.Flags().StringVar(&levels, "levels", "", "K 线周期, 如 '5min,1H,1d', 为空时使用配置")
	klineCmd.Flags().BoolVar(&exportTicks, "export-ticks", false, "同时把快照导入按品种分表的 tick 表")

	checkCmd.Flags().BoolVar(&fix, "fix", false, "删除孤儿快照并清理悬空引用")
	cronCmd.Flags().BoolVar(&fix, "fix", false, "核对阶段自动修复")

	tagCmd.Flags().StringVar(&tag, "tag", "", "标签名 (必填)")
	tagCmd.Flags().BoolVar(&pull, "pull", false, "移除标签")
	tagCmd.MarkFlagRequired("tag")

	rootCmd.AddCommand(importCmd, convertCmd, splitCmd, klineCmd, dominantCmd,
		checkCmd, tagCmd, delZipCmd, deleteCmd, statsCmd, cronCmd)

	cobra.OnFinalize(func() {
		utils.RemoveCacheDir()
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "🛑 错误: %v\n", err)
		os.Exit(1)
	}
}
