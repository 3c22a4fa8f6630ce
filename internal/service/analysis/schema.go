package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/eino-contrib/jsonschema"
	"github.com/go-playground/validator/v10"
	"github.com/projectlens/backend/internal/domain"
	"github.com/projectlens/backend/internal/utils"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// 去除空白后不能为空
	_ = validate.RegisterValidation("nonempty", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	// 错误信息里使用 JSON 字段名
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// reportPayload 模型必须返回的 JSON 结构
type reportPayload struct {
	RiskLevel         string              `json:"riskLevel" validate:"required,oneof=Low Medium High" jsonschema:"enum=Low,enum=Medium,enum=High"`
	RiskJustification string              `json:"riskJustification" validate:"required,nonempty"`
	TopRisks          []riskItemPayload   `json:"topRisks" validate:"required,dive"`
	FixNowSuggestions []suggestionPayload `json:"fixNowSuggestions" validate:"required,dive"`
}

type riskItemPayload struct {
	Name      string `json:"name" validate:"required,nonempty"`
	Why       string `json:"why" validate:"required,nonempty"`
	Reference string `json:"reference" validate:"required,nonempty"`
}

type suggestionPayload struct {
	RiskName string `json:"riskName" validate:"required,nonempty"`
	Action   string `json:"action" validate:"required,nonempty"`
}

// ReportSchemaName 结构化输出中使用的 schema 名称
const ReportSchemaName = "audit_report"

// ReportSchema 由 reportPayload 反射出的 JSON Schema，所有字段必填、不允许额外字段。
// 非空约束只由校验器检查，部分提供方的严格模式不接受 minLength。
func ReportSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(&reportPayload{})
	s.Version = ""
	return s
}

// ParseReport 校验模型回复并转换为报告。任何不符合结构的回复都返回错误，不产出部分结果。
func ParseReport(content string) (*domain.AuditReport, error) {
	raw := strings.TrimSpace(utils.ExtractJSON(content))
	if raw == "" {
		return nil, errors.New("empty response")
	}

	var payload reportPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if err := validate.Struct(&payload); err != nil {
		return nil, formatValidationErrors(err)
	}

	level, err := domain.ParseRiskLevel(payload.RiskLevel)
	if err != nil {
		return nil, err
	}

	report := &domain.AuditReport{
		RiskLevel:         level,
		RiskJustification: payload.RiskJustification,
		TopRisks:          make([]domain.RiskItem, 0, len(payload.TopRisks)),
		FixNowSuggestions: make([]domain.Suggestion, 0, len(payload.FixNowSuggestions)),
	}
	for _, r := range payload.TopRisks {
		report.TopRisks = append(report.TopRisks, domain.RiskItem{
			Name:      r.Name,
			Why:       r.Why,
			Reference: r.Reference,
		})
	}
	for _, s := range payload.FixNowSuggestions {
		report.FixNowSuggestions = append(report.FixNowSuggestions, domain.Suggestion{
			RiskName: s.RiskName,
			Action:   s.Action,
		})
	}
	return report, nil
}

func formatValidationErrors(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "reportPayload.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "nonempty":
		return fmt.Sprintf("%s cannot be empty or whitespace", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s (got %v)", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
