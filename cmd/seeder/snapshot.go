package main

import (
	"github.com/spf13/cobra"
)

var loadRecreate bool

var loadSnapshotCmd = &cobra.Command{
	Use:   "load-snapshot products|reviews <file>",
	Short: "从快照文件恢复索引，不调用 embedding 服务",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		runner, err := app.Runner(ctx)
		if err != nil {
			return err
		}
		report, err := runner.LoadSnapshot(ctx, kind, args[1], loadRecreate)
		if report != nil {
			if perr := printJSON(cmd, report); perr != nil {
				return perr
			}
		}
		return err
	},
}

func init() {
	loadSnapshotCmd.Flags().BoolVar(&loadRecreate, "recreate", false, "删除并重建索引")
	rootCmd.AddCommand(loadSnapshotCmd)
}
