package engine

import (
	"errors"
	"strings"
)

// placeholder 是回复模板中唯一支持的占位符。
const placeholder = "{message}"

// errEmptyTemplate 表示规则缺失模板。活跃规则不应出现这种情况，
// 这里只做防御性检查，错误由级联控制器在内部消化。
var errEmptyTemplate = errors.New("response template is empty")

// renderTemplate 将模板中每一处 {message} 替换为消息原文。
// 不做转义、不做递归替换，除占位符之外的字符原样保留。
func renderTemplate(template, message string) (string, error) {
	if template == "" {
		return "", errEmptyTemplate
	}
	return strings.ReplaceAll(template, placeholder, message), nil
}
