package viewstate

import "github.com/projectlens/backend/internal/domain"

// Mode 当前应渲染的界面
type Mode string

const (
	ModeCompose Mode = "compose"
	ModeLoading Mode = "loading"
	ModeError   Mode = "error"
	ModeReport  Mode = "report"
)

// State 单个会话的视图状态。Error 为空表示没有错误。
type State struct {
	ProjectPlan string              `json:"projectPlan"`
	Report      *domain.AuditReport `json:"report"`
	IsLoading   bool                `json:"isLoading"`
	Error       string              `json:"error,omitempty"`
}

// Mode 有报告即为报告模式，与 loading/error 无关
func (s State) Mode() Mode {
	switch {
	case s.Report != nil:
		return ModeReport
	case s.IsLoading:
		return ModeLoading
	case s.Error != "":
		return ModeError
	default:
		return ModeCompose
	}
}
