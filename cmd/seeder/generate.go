package main

import (
	"smarthomes-semantic/internal/repository"
	"smarthomes-semantic/internal/service"
	"smarthomes-semantic/pkg/llm"

	"github.com/spf13/cobra"
)

var (
	generatePerProduct int
	generateOutput     string
	generateToDB       bool
)

var generateReviewsCmd = &cobra.Command{
	Use:   "generate-reviews",
	Short: "调用大模型为每个商品生成评论，写入评论文件",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		db, err := app.OpenDB()
		if err != nil {
			return err
		}
		opts := []service.ReviewGeneratorOption{}
		if generateToDB {
			opts = append(opts, service.WithReviewRepository(repository.NewReviewRepository(db)))
		}
		gen := service.NewReviewGenerator(repository.NewProductRepository(db), llm.NewClient(app.Config.LLM), opts...)

		entries, err := gen.Generate(ctx, generatePerProduct)
		if err != nil {
			return err
		}
		output := generateOutput
		if output == "" {
			output = app.Config.Pipeline.ReviewsFile
		}
		if err := gen.Save(ctx, output, entries); err != nil {
			return err
		}
		cmd.Printf("Generated %d reviews into %s\n", len(entries), output)
		return nil
	},
}

func init() {
	generateReviewsCmd.Flags().IntVar(&generatePerProduct, "per-product", service.DefaultReviewsPerProduct, "每个商品生成的评论数")
	generateReviewsCmd.Flags().StringVar(&generateOutput, "output", "", "评论文件路径，默认使用 pipeline.reviews_file")
	generateReviewsCmd.Flags().BoolVar(&generateToDB, "to-db", false, "同时写入 ProductReviews 表")
	rootCmd.AddCommand(generateReviewsCmd)
}
