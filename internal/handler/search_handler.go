// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/internal/service"
	"smarthomes-semantic/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了语义检索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// SearchRequest 定义了检索 API 的请求体结构。TopK 为 0 时使用配置的默认值，最大为 service.MaxTopK。
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topK"`
}

// SearchProducts 处理 POST /api/ai/products。
func (h *SearchHandler) SearchProducts(c *gin.Context) {
	h.search(c, model.KindProduct)
}

// SearchReviews 处理 POST /api/ai/reviews。
func (h *SearchHandler) SearchReviews(c *gin.Context) {
	h.search(c, model.KindReview)
}

func (h *SearchHandler) search(c *gin.Context, kind model.Kind) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[SearchHandler] 无效的请求负载: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.TopK < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topK must be positive"})
		return
	}
	if req.TopK > service.MaxTopK {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrTopKTooLarge.Error()})
		return
	}
	log.Infof("[SearchHandler] 收到检索请求, kind: %s, query: %s, topK: %d", kind, req.Query, req.TopK)

	hits, err := h.searchService.Search(c.Request.Context(), kind, req.Query, req.TopK)
	if err != nil {
		if errors.Is(err, service.ErrEmptyQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required"})
			return
		}
		if errors.Is(err, service.ErrTopKTooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrTopKTooLarge.Error()})
			return
		}
		log.Errorf("[SearchHandler] 检索服务返回错误, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed", "details": err.Error()})
		return
	}

	results := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		results = append(results, hit.Flatten())
	}
	log.Infof("[SearchHandler] 检索成功, query: '%s', 返回 %d 条结果", req.Query, len(results))
	c.JSON(http.StatusOK, gin.H{
		"query":         req.Query,
		"results":       results,
		"total_results": len(results),
	})
}
