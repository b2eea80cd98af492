package runner

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const maxFragment = 200

// nearestExcerpt finds the text fragment of content closest to want and
// renders it as a unified diff, so a near miss ("5 / 6" for "6 / 6") is
// obvious in the failure message.
func nearestExcerpt(content, want string) string {
	fragments := strings.FieldsFunc(content, func(r rune) bool {
		return r == '<' || r == '>' || r == '\n'
	})

	wantChars := strings.Split(want, "")
	best, bestRatio := "", 0.0
	for _, f := range fragments {
		f = strings.TrimSpace(f)
		if f == "" || len(f) > maxFragment {
			continue
		}
		m := difflib.NewMatcher(wantChars, strings.Split(f, ""))
		if r := m.Ratio(); r > bestRatio {
			best, bestRatio = f, r
		}
	}
	if best == "" {
		return ""
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        []string{want + "\n"},
		B:        []string{best + "\n"},
		FromFile: "expected",
		ToFile:   "page",
		Context:  0,
	})
	if err != nil {
		return ""
	}
	return strings.TrimRight(diff, "\n")
}
