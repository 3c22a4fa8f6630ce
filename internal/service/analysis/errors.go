package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

// Kind 分析失败的类别
type Kind string

const (
	// KindServiceUnavailable 网络或服务端错误，可能是暂时性的
	KindServiceUnavailable Kind = "ServiceUnavailable"
	// KindMalformedResponse 模型回复不符合报告结构，重试无意义
	KindMalformedResponse Kind = "MalformedResponse"
	// KindConfigurationError 凭据缺失/无效或提供方配置错误
	KindConfigurationError Kind = "ConfigurationError"
)

// ErrEmptyPlan 计划文本为空（去除空白后）
var ErrEmptyPlan = errors.New("project plan is empty")

// Error 分析客户端对外暴露的唯一错误类型
type Error struct {
	Kind     Kind
	Message  string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf 取出错误类别，非分析错误返回空字符串
func KindOf(err error) Kind {
	var aErr *Error
	if errors.As(err, &aErr) {
		return aErr.Kind
	}
	return ""
}

func newError(kind Kind, err error) *Error {
	var msg string
	switch kind {
	case KindServiceUnavailable:
		msg = "analysis service unavailable"
	case KindMalformedResponse:
		msg = "analysis service returned a malformed report"
	case KindConfigurationError:
		msg = "analysis service is not configured correctly"
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// authKeywords 提示凭据被拒绝的错误片段，不含裸状态码
var authKeywords = []string{
	"unauthorized",
	"forbidden",
	"invalid api key",
	"invalid_api_key",
	"incorrect api key",
	"authentication_error",
	"authentication failed",
	"permission_denied",
	"unauthenticated",
	"api key not valid",
}

// authStatusPattern 只匹配上下文明确为 HTTP 状态的 401/403，
// 端口、IP、请求 ID 中出现的数字不算
var authStatusPattern = regexp.MustCompile(`(?i)(?:\bstatus(?:\s*code)?\s*[:=]?\s*|\bhttp\s+)40[13]\b|\b40[13]\s+(?:unauthorized|forbidden)\b`)

// classifyProviderError 先看 SDK 的结构化错误，再按错误信息归类
func classifyProviderError(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindServiceUnavailable
	}

	if code, ok := providerStatusCode(err); ok {
		if code == http.StatusUnauthorized || code == http.StatusForbidden {
			return KindConfigurationError
		}
		return KindServiceUnavailable
	}

	if authStatusPattern.MatchString(err.Error()) {
		return KindConfigurationError
	}
	errMsg := strings.ToLower(err.Error())
	for _, keyword := range authKeywords {
		if strings.Contains(errMsg, keyword) {
			return KindConfigurationError
		}
	}
	return KindServiceUnavailable
}

// providerStatusCode 从带状态码的 SDK 错误中取出 HTTP 状态
func providerStatusCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code > 0 {
		return apiErr.Code, true
	}
	return 0, false
}
