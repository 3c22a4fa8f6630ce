package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/projectlens/backend/internal/embed"
	"github.com/projectlens/backend/internal/service/session"
	"github.com/projectlens/backend/internal/service/viewstate"
	"k8s.io/klog/v2"
)

const (
	defaultRefreshSeconds = 2
	noticeBusy            = "busy"
)

type sessionStore interface {
	Create() (*viewstate.Controller, error)
	Get(id string) (*viewstate.Controller, error)
	Delete(id string) error
}

// AuditHandler 审计页面与会话 API
type AuditHandler struct {
	store          sessionStore
	refreshSeconds int
}

// NewAuditHandler 创建审计处理器
func NewAuditHandler(store sessionStore) *AuditHandler {
	return &AuditHandler{store: store, refreshSeconds: defaultRefreshSeconds}
}

// RegisterPageRoutes 注册服务端渲染页面的路由
func (h *AuditHandler) RegisterPageRoutes(r gin.IRoutes) {
	r.GET("/", h.Index)
	r.GET("/audits/:id", h.Page)
	r.POST("/audits/:id/plan", h.FormSetPlan)
	r.POST("/audits/:id/sample", h.FormLoadSample)
	r.POST("/audits/:id/submit", h.FormSubmit)
	r.POST("/audits/:id/reset", h.FormReset)
}

// RegisterRoutes 注册 JSON API 路由
func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetSession)
		sessions.DELETE("/:id", h.DeleteSession)
		sessions.PUT("/:id/plan", h.SetPlan)
		sessions.POST("/:id/sample", h.LoadSample)
		sessions.POST("/:id/submit", h.Submit)
		sessions.POST("/:id/reset", h.Reset)
	}
}

// SetPlanRequest 更新计划文本请求
type SetPlanRequest struct {
	Plan *string `json:"plan" binding:"required"`
}

// SessionResponse 会话状态响应
type SessionResponse struct {
	ID    string          `json:"id"`
	State viewstate.State `json:"state"`
	Mode  viewstate.Mode  `json:"mode"`
}

type pageData struct {
	SessionID      string
	State          viewstate.State
	Mode           viewstate.Mode
	CanSubmit      bool
	Notice         string
	RefreshSeconds int
}

func toSessionResponse(ctrl *viewstate.Controller) SessionResponse {
	state := ctrl.Snapshot()
	return SessionResponse{ID: ctrl.ID(), State: state, Mode: state.Mode()}
}

func auditPath(id string) string {
	return "/audits/" + id
}

// Index 每次访问首页都开启一个新的空白会话
func (h *AuditHandler) Index(c *gin.Context) {
	ctrl, err := h.store.Create()
	if err != nil {
		klog.Errorf("Index: create session failed: %v", err)
		c.String(http.StatusServiceUnavailable, err.Error())
		return
	}
	c.Redirect(http.StatusSeeOther, auditPath(ctrl.ID()))
}

// Page 渲染会话当前状态
func (h *AuditHandler) Page(c *gin.Context) {
	ctrl, ok := h.pageController(c)
	if !ok {
		return
	}

	state := ctrl.Snapshot()
	data := pageData{
		SessionID:      ctrl.ID(),
		State:          state,
		Mode:           state.Mode(),
		CanSubmit:      !state.IsLoading && strings.TrimSpace(state.ProjectPlan) != "",
		RefreshSeconds: h.refreshSeconds,
	}
	if c.Query("notice") == noticeBusy {
		data.Notice = "An analysis is already running for this plan."
	}
	c.HTML(http.StatusOK, embed.PageTemplate, data)
}

// FormSetPlan 保存草稿。页面脚本自动保存时返回 204，普通表单提交跳回页面
func (h *AuditHandler) FormSetPlan(c *gin.Context) {
	if isAsync(c) {
		ctrl, err := h.store.Get(c.Param("id"))
		if err != nil {
			h.apiError(c, err)
			return
		}
		ctrl.SetPlanText(c.PostForm("plan"))
		c.Status(http.StatusNoContent)
		return
	}

	ctrl, ok := h.pageController(c)
	if !ok {
		return
	}
	ctrl.SetPlanText(c.PostForm("plan"))
	c.Redirect(http.StatusSeeOther, auditPath(ctrl.ID()))
}

func isAsync(c *gin.Context) bool {
	return c.GetHeader("X-Requested-With") == "XMLHttpRequest"
}

// FormLoadSample 载入示例计划
func (h *AuditHandler) FormLoadSample(c *gin.Context) {
	ctrl, ok := h.pageController(c)
	if !ok {
		return
	}
	ctrl.LoadSample()
	c.Redirect(http.StatusSeeOther, auditPath(ctrl.ID()))
}

// FormSubmit 保存表单文本后提交分析
func (h *AuditHandler) FormSubmit(c *gin.Context) {
	ctrl, ok := h.pageController(c)
	if !ok {
		return
	}
	if plan, exists := c.GetPostForm("plan"); exists && !ctrl.Snapshot().IsLoading {
		ctrl.SetPlanText(plan)
	}

	target := auditPath(ctrl.ID())
	if _, err := ctrl.Submit(c.Request.Context()); err != nil {
		if errors.Is(err, viewstate.ErrAnalysisInFlight) {
			target += "?notice=" + noticeBusy
		} else {
			klog.Errorf("FormSubmit: submit failed: %v", err)
		}
	}
	c.Redirect(http.StatusSeeOther, target)
}

// FormReset 回到空白编辑页
func (h *AuditHandler) FormReset(c *gin.Context) {
	ctrl, ok := h.pageController(c)
	if !ok {
		return
	}
	ctrl.Reset()
	c.Redirect(http.StatusSeeOther, auditPath(ctrl.ID()))
}

// CreateSession 创建会话
func (h *AuditHandler) CreateSession(c *gin.Context) {
	ctrl, err := h.store.Create()
	if err != nil {
		klog.Errorf("CreateSession: failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(ctrl))
}

// GetSession 获取会话状态
func (h *AuditHandler) GetSession(c *gin.Context) {
	ctrl, ok := h.apiController(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(ctrl))
}

// DeleteSession 删除会话
func (h *AuditHandler) DeleteSession(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		h.apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetPlan 替换计划文本，允许空字符串
func (h *AuditHandler) SetPlan(c *gin.Context) {
	ctrl, ok := h.apiController(c)
	if !ok {
		return
	}

	var req SetPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		klog.V(6).Infof("SetPlan: invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctrl.SetPlanText(*req.Plan)
	c.JSON(http.StatusOK, toSessionResponse(ctrl))
}

// LoadSample 载入示例计划
func (h *AuditHandler) LoadSample(c *gin.Context) {
	ctrl, ok := h.apiController(c)
	if !ok {
		return
	}
	ctrl.LoadSample()
	c.JSON(http.StatusOK, toSessionResponse(ctrl))
}

// Submit 提交分析，立即返回，结果通过 GetSession 轮询
func (h *AuditHandler) Submit(c *gin.Context) {
	ctrl, ok := h.apiController(c)
	if !ok {
		return
	}
	if _, err := ctrl.Submit(c.Request.Context()); err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toSessionResponse(ctrl))
}

// Reset 重置会话
func (h *AuditHandler) Reset(c *gin.Context) {
	ctrl, ok := h.apiController(c)
	if !ok {
		return
	}
	ctrl.Reset()
	c.JSON(http.StatusOK, toSessionResponse(ctrl))
}

// pageController 会话不存在时跳转首页开启新会话
func (h *AuditHandler) pageController(c *gin.Context) (*viewstate.Controller, bool) {
	ctrl, err := h.store.Get(c.Param("id"))
	if err != nil {
		klog.V(6).Infof("会话不存在，重新开始: id=%s", c.Param("id"))
		c.Redirect(http.StatusSeeOther, "/")
		return nil, false
	}
	return ctrl, true
}

func (h *AuditHandler) apiController(c *gin.Context) (*viewstate.Controller, bool) {
	ctrl, err := h.store.Get(c.Param("id"))
	if err != nil {
		h.apiError(c, err)
		return nil, false
	}
	return ctrl, true
}

func (h *AuditHandler) apiError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, viewstate.ErrAnalysisInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrStoreClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		klog.Errorf("audit api error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
