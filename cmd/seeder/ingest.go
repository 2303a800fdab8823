package main

import (
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/internal/pipeline"

	"github.com/spf13/cobra"
)

var (
	ingestRecreate    bool
	ingestBatchSize   int
	ingestConcurrency int
	ingestTestQuery   string
	ingestNoTestQuery bool
)

var defaultTestQueries = map[model.Kind]string{
	model.KindProduct: "smart doorbell with camera",
	model.KindReview:  "positive reviews about video quality",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest products|reviews",
	Short: "读取记录、生成向量并写入索引",
	Args:  cobra.ExactArgs(1),
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
		report, err := runner.Ingest(ctx, kind, pipeline.IngestOptions{
			Recreate:    ingestRecreate || app.Config.Pipeline.RecreateIndex,
			BatchSize:   ingestBatchSize,
			Concurrency: ingestConcurrency,
		})
		if report != nil {
			if perr := printJSON(cmd, report); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}

		if ingestNoTestQuery {
			return nil
		}
		query := ingestTestQuery
		if query == "" {
			query = defaultTestQueries[kind]
		}
		hits, err := app.SearchService().Search(ctx, kind, query, 0)
		if err != nil {
			return err
		}
		cmd.Printf("\nTest query: %q\n", query)
		printHits(cmd, hits)
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestRecreate, "recreate", false, "删除并重建索引")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "每批记录数，0 表示使用配置")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0, "并发批次数，0 表示使用配置")
	ingestCmd.Flags().StringVar(&ingestTestQuery, "test-query", "", "入库后执行的检索语句")
	ingestCmd.Flags().BoolVar(&ingestNoTestQuery, "no-test-query", false, "入库后不执行检索")
	rootCmd.AddCommand(ingestCmd)
}
