package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"smarthomes-semantic/internal/bootstrap"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/internal/pipeline"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "seeder",
	Short:         "SmartHomes 向量化入库与语义检索工具",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// cobra 默认输出到 stderr，报告和检索结果改为 stdout，日志仍在 stderr
	rootCmd.SetOut(os.Stdout)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
}

// Execute 执行根命令，失败时打印错误（含失败阶段）并以非零状态退出。
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if phase, ok := pipeline.PhaseOf(err); ok {
			fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", phase, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func newApp(ctx context.Context) (*bootstrap.App, error) {
	return bootstrap.New(ctx, configPath)
}

func parseKindArg(arg string) (model.Kind, error) {
	kind, err := model.ParseKind(arg)
	if err != nil {
		return "", fmt.Errorf("%w (want products or reviews)", err)
	}
	return kind, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}
