package utils

import (
	"encoding/json"

	"k8s.io/klog/v2"
)

// ExtractJSON 从模型回复中提取第一个完整的 JSON 对象。
// 会跳过 ```json 代码块标记和前后说明文字，字符串内的花括号不计入层级。
// 找不到完整对象时返回原始内容，由调用方的解析步骤报错。
func ExtractJSON(content string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				klog.V(8).Infof("[ExtractJSON] 提取到 JSON 对象: start=%d, end=%d", start, i+1)
				return content[start : i+1]
			}
		}
	}

	klog.V(6).Infof("[ExtractJSON] 未找到完整的 JSON 对象，返回原始内容")
	return content
}

func ToJSON(v any) string {
	jsonData, err := json.Marshal(v)
	if err != nil {
		klog.Errorf("JSON序列化失败: %v", err)
		return ""
	}
	return string(jsonData)
}
