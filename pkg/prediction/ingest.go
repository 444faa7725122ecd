package prediction

import (
	"regexp"
	"strings"
)

const previewRunes = 200

var (
	urlRe          = regexp.MustCompile(`https?://\S+`)
	labelledGame   = regexp.MustCompile(`(?i)jogo:\s*(.+?)\s+x\s+(.+)`)
	unlabelledGame = regexp.MustCompile(`([\p{L}0-9.\- ]{2,60})\s+[xX]\s+([\p{L}0-9.\- ]{2,60})`)
)

// SourceURL returns the first URL in the text, or "" when there is none
func SourceURL(text string) string {
	return urlRe.FindString(text)
}

// Teams extracts "Home x Away" from a tip. A "Jogo:" line is preferred over any other
// "A x B" occurrence.
func Teams(text string) (home, away string, ok bool) {
	for _, re := range []*regexp.Regexp{labelledGame, unlabelledGame} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		home, away = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if home != "" && away != "" {
			return home, away, true
		}
	}
	return "", "", false
}

// Preview flattens the text to a single line of at most 200 runes
func Preview(text string) string {
	flat := strings.ReplaceAll(strings.ReplaceAll(text, "\r", ""), "\n", " ")
	runes := []rune(flat)
	if len(runes) > previewRunes {
		runes = runes[:previewRunes]
	}
	return string(runes)
}
