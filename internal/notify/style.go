package notify

import "strings"

// Boldify переводит латиницу и цифры в «жирные» математические символы юникода
// соцсети не поддерживают разметку, а так имя поставщика выделяется в тексте
func Boldify(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return 0x1D41A + (r - 'a')
		case r >= 'A' && r <= 'Z':
			return 0x1D400 + (r - 'A')
		case r >= '0' && r <= '9':
			return 0x1D7CE + (r - '0')
		case r == '!':
			return '❗'
		case r == '?':
			return '❓'
		default:
			return r
		}
	}, s)
}

// Monodigits переводит цифры в жирные цифры без засечек
func Monodigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return 0x1D7EC + (r - '0')
		}
		return r
	}, s)
}
