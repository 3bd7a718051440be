package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// 字段长度上限（按字符计）
const (
	MaxLineLength    = 200
	MaxEventIDLength = 100
	MaxMessageLength = 5000
)

// SanitizeLine 清洗单行字段
//
// 换行折叠为一个空格，其余控制字符替换为空格，去除首尾空白后截断到 max 个字符。
// 对同一输入重复调用结果不变。
func SanitizeLine(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '\u2028' || r == '\u2029' {
			return ' '
		}
		return r
	}, s)
	return truncate(strings.TrimSpace(s), max)
}

// SanitizeText 清洗多行字段，保留换行和制表符
func SanitizeText(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return truncate(strings.TrimSpace(s), max)
}

// truncate 按字符截断；截断后末尾的空白一并去掉
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:max]), unicode.IsSpace)
}
