package handler

import (
	"net/http"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/pkg/kafka"
	"smarthomes-semantic/pkg/log"
	"smarthomes-semantic/pkg/tasks"

	"github.com/gin-gonic/gin"
)

// IngestHandler 负责触发异步重建索引。
type IngestHandler struct {
	producer kafka.TaskProducer
}

// NewIngestHandler 创建一个新的 IngestHandler 实例。
func NewIngestHandler(producer kafka.TaskProducer) *IngestHandler {
	return &IngestHandler{producer: producer}
}

// ReindexRequest 定义了重建索引 API 的请求体结构。
type ReindexRequest struct {
	Kind     string `json:"kind" binding:"required"`
	Recreate bool   `json:"recreate"`
}

// Reindex 处理 POST /api/ai/reindex：投递一个入库任务，由后台消费者执行。
func (h *IngestHandler) Reindex(c *gin.Context) {
	var req ReindexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind is required"})
		return
	}
	kind, err := model.ParseKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := tasks.NewIngestTask(string(kind), req.Recreate)
	if err := h.producer.ProduceIngestTask(c.Request.Context(), task); err != nil {
		log.Errorf("[IngestHandler] 投递入库任务失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue reindex task"})
		return
	}

	log.Infof("[IngestHandler] 入库任务已投递, ID: %s, Kind: %s, Recreate: %t", task.ID, kind, req.Recreate)
	c.JSON(http.StatusAccepted, gin.H{
		"taskId":   task.ID,
		"kind":     kind,
		"recreate": req.Recreate,
	})
}
