package classify

import (
	"html"
	"regexp"
	"strings"

	"github.com/ppiankov/warden/internal/model"
)

var (
	classificationBlock = regexp.MustCompile(`(?is)<classification\b[^>]*>(.*?)</classification\s*>`)
	levelTag            = regexp.MustCompile(`(?is)<level\b[^>]*>(.*?)</level\s*>`)
	reasonTag           = regexp.MustCompile(`(?is)<reason\b[^>]*>(.*?)</reason\s*>`)
)

// maxReplyLen caps how much of a model reply is scanned.
const maxReplyLen = 64 << 10

// TryParseXMLClassification extracts a verdict from a model reply shaped as
// <classification><level>L0..L3</level><reason>...</reason></classification>.
// Surrounding prose, whitespace and tag case are tolerated. A missing tag or
// malformed level yields ok=false. When the reply holds several well-formed
// blocks the highest level wins.
func TryParseXMLClassification(text string) (model.Classification, bool) {
	if len(text) > maxReplyLen {
		text = text[:maxReplyLen]
	}

	var (
		best  model.Classification
		found bool
	)
	for _, block := range classificationBlock.FindAllStringSubmatch(text, -1) {
		lm := levelTag.FindStringSubmatch(block[1])
		rm := reasonTag.FindStringSubmatch(block[1])
		if lm == nil || rm == nil {
			continue
		}
		level, err := model.ParseLevel(html.UnescapeString(lm[1]))
		if err != nil {
			continue
		}
		c := model.Classification{
			Level:  level,
			Reason: strings.Join(strings.Fields(html.UnescapeString(rm[1])), " "),
		}
		if c.Reason == "" {
			c.Reason = "model gave no reason"
		}
		if !found || c.Level > best.Level {
			best, found = c, true
		}
	}
	return best, found
}
