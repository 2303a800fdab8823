// Package main 是 seeder 命令行工具：读取商品和评论，生成向量并写入 Elasticsearch。
package main

func main() {
	Execute()
}
