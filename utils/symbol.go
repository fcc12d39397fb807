package utils

import (
	"strings"
	"unicode"
)

// SplitInstrument 把合约代码拆成品种字母和后四位, 如 AG1406 -> AG, 1406;
// 主连 AG9999 / 指数 AG0000 同样适用
func SplitInstrument(code string) (category, subID string, ok bool) {
	code = strings.TrimSpace(code)
	if len(code) < 5 {
		return "", "", false
	}

	i := 0
	for i < len(code) && unicode.IsLetter(rune(code[i])) {
		i++
	}
	if i == 0 || i > 4 {
		return "", "", false
	}

	for _, r := range code[i:] {
		if !unicode.IsDigit(r) {
			return "", "", false
		}
	}
	// 郑商所三位数字的合约 (如 SR905) 后四位会带上一个字母, 与历史数据保持一致
	return code[:i], code[len(code)-4:], true
}
