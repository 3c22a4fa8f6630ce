package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/projectlens/backend/internal/service"
	"k8s.io/klog/v2"
)

// UsageHandler 分析计量查询
type UsageHandler struct {
	service service.UsageService
}

func NewUsageHandler(service service.UsageService) *UsageHandler {
	return &UsageHandler{service: service}
}

func (h *UsageHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/usage", h.List)
	router.GET("/usage/stats", h.Stats)
}

// List 最近的计量记录
func (h *UsageHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	usages, err := h.service.ListRecent(c.Request.Context(), limit)
	if err != nil {
		klog.Errorf("ListUsage: failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": usages, "count": len(usages)})
}

// Stats 计量汇总
func (h *UsageHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		klog.Errorf("UsageStats: failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
