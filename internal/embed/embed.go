package embed

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/projectlens/backend/internal/domain"
)

//go:embed templates/*.html static/*
var embeddedFiles embed.FS

// PageTemplate 审计页面模板名
const PageTemplate = "audit.html"

var funcs = template.FuncMap{
	"riskClass": RiskClass,
	"inc":       func(i int) int { return i + 1 },
	"year":      func() int { return time.Now().Year() },
}

// RiskClass 风险等级对应的徽章样式
func RiskClass(level domain.RiskLevel) string {
	if !level.Valid() {
		return "risk-unknown"
	}
	return "risk-" + strings.ToLower(string(level))
}

// Templates 解析嵌入的页面模板
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(embeddedFiles, "templates/*.html")
}

// SetupRouter 注册页面模板和静态资源
func SetupRouter(r *gin.Engine) error {
	tmpl, err := Templates()
	if err != nil {
		return err
	}
	r.SetHTMLTemplate(tmpl)

	staticFS, err := fs.Sub(embeddedFiles, "static")
	if err != nil {
		return err
	}
	// 只压缩静态资源，页面和 API 保持原样
	static := r.Group("/static", gzip.Gzip(gzip.BestCompression))
	static.StaticFS("/", http.FS(staticFS))

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.String(http.StatusNotFound, "404 page not found")
	})
	return nil
}
