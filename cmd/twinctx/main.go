// twinctx 是上下文流水线的命令行入口。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "twinctx",
	Short:         "Embed, select and optimize LLM context",
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `twinctx 组装发送给 LLM 的上下文。

embed 为文本分块生成嵌入（带缓存与限速），select 从文档库和会话历史中
筛选候选，optimize 在筛选结果上去重、限额并做质量把关。`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML or JSON)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
