package profile

import "regexp"

var (
	inputPattern = regexp.MustCompile(`[^\w\s-]`)
	emailPattern = regexp.MustCompile(`[^\w.@\s-]`)
	gachaPattern = regexp.MustCompile(`[^\w\s\-.]`)
)

// SanitizeInput 只保留字母数字、下划线、空白和连字符，用于用户名和字段名
func SanitizeInput(s string) string {
	return inputPattern.ReplaceAllString(s, "")
}

// SanitizeEmail 额外保留 . 和 @
func SanitizeEmail(s string) string {
	return emailPattern.ReplaceAllString(s, "")
}

// SanitizeGachaName 额外保留 .
func SanitizeGachaName(s string) string {
	return gachaPattern.ReplaceAllString(s, "")
}
