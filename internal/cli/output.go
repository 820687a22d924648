package cli

import (
	"github.com/fatih/color"

	"github.com/ppiankov/warden/internal/model"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

func levelColor(l model.RiskLevel) *color.Color {
	switch l {
	case model.L0:
		return color.New(color.FgGreen)
	case model.L1:
		return color.New(color.FgCyan)
	case model.L2:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

// levelTag renders "L2 destructive" in the level's color.
func levelTag(l model.RiskLevel) string {
	return levelColor(l).Sprintf("%s %s", l, l.Label())
}
