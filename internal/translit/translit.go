// Package translit turns Cyrillic business names into Latin login slugs.
package translit

import (
	"strings"
)

// MaxLength caps the produced slug.
const MaxLength = 20

var table = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
	' ': "", '-': "", '_': "", '.': "", ',': "",
}

// Login maps name to a slug of ASCII letters and digits with the first letter upper-cased.
// It is total: unknown runes pass through the table and are then dropped unless alphanumeric.
func Login(name string) string {
	var mapped strings.Builder
	for _, r := range strings.ToLower(name) {
		if latin, ok := table[r]; ok {
			mapped.WriteString(latin)
			continue
		}
		mapped.WriteRune(r)
	}

	out := make([]byte, 0, MaxLength)
	for _, r := range mapped.String() {
		if !isASCIIAlnum(r) {
			continue
		}
		if len(out) == 0 && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		out = append(out, byte(r))
		if len(out) == MaxLength {
			break
		}
	}
	return string(out)
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
