package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/projectlens/backend/config"
)

// ConfigHandler 只读展示生效配置
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

func (h *ConfigHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/config", h.Get)
}

// Get 返回生效配置，API Key 脱敏，数据库 DSN 不返回
func (h *ConfigHandler) Get(c *gin.Context) {
	cfg := h.cfg
	c.JSON(http.StatusOK, gin.H{
		"server": gin.H{
			"port":        cfg.Server.Port,
			"mode":        cfg.Server.Mode,
			"session_ttl": cfg.Server.SessionTTL.String(),
		},
		"database": gin.H{
			"type": cfg.Database.Type,
		},
		"llm": gin.H{
			"provider":       cfg.LLM.Provider,
			"api_url":        cfg.LLM.APIURL,
			"api_key":        config.MaskKey(cfg.LLM.APIKey),
			"model":          cfg.LLM.Model,
			"max_tokens":     cfg.LLM.MaxTokens,
			"temperature":    cfg.LLM.Temperature,
			"timeout":        cfg.LLM.Timeout.String(),
			"max_retries":    cfg.LLM.MaxRetries,
			"retry_backoff":  cfg.LLM.RetryBackoff.String(),
			"max_concurrent": cfg.LLM.MaxConcurrent,
		},
	})
}

// Health 存活检查
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
