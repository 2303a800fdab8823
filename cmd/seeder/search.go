package main

import (
	"smarthomes-semantic/internal/model"

	"github.com/spf13/cobra"
)

var (
	searchTopK int
	searchJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search products|reviews <query>",
	Short: "对已入库的向量执行语义检索",
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

		hits, err := app.SearchService().Search(ctx, kind, args[1], searchTopK)
		if err != nil {
			return err
		}
		if searchJSON {
			results := make([]map[string]interface{}, 0, len(hits))
			for _, h := range hits {
				results = append(results, h.Flatten())
			}
			return printJSON(cmd, map[string]interface{}{
				"query":         args[1],
				"results":       results,
				"total_results": len(results),
			})
		}
		printHits(cmd, hits)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "返回结果数，0 表示使用配置")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "以 JSON 输出")
	rootCmd.AddCommand(searchCmd)
}

func printHits(cmd *cobra.Command, hits []model.SearchHit) {
	if len(hits) == 0 {
		cmd.Println("No results.")
		return
	}
	for i, h := range hits {
		d := h.Document
		switch {
		case d.ProductInfo != nil:
			cmd.Printf("%d. [%.4f] %s ($%s, %s)\n", i+1, h.Score, d.ProductInfo.Name,
				model.FormatPrice(d.ProductInfo.Price), d.ProductInfo.Category)
		case d.ReviewInfo != nil:
			cmd.Printf("%d. [%.4f] %s, rating %d: %s\n", i+1, h.Score, d.ReviewInfo.ProductModelName,
				d.ReviewInfo.ReviewRating, d.ReviewInfo.ReviewText)
		default:
			cmd.Printf("%d. [%.4f] %s\n", i+1, h.Score, h.DocumentID)
		}
	}
}
