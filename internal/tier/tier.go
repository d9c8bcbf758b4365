// Package tier holds subscription tiers and the policies keyed on them.
package tier

type Tier string
type Action string

const (
	Free Tier = "free"
	Pro  Tier = "pro"
)

const (
	ActionDraw           Action = "draw"
	ActionExport         Action = "export"
	ActionExportComments Action = "export_comments"
	ActionSentiment      Action = "sentiment"
)

func Can(t Tier, action Action) bool {
	switch t {
	case Pro:
		return true
	case Free:
		return action == ActionDraw
	default:
		return false
	}
}

// Normalize maps a stored tier string onto a known tier. Unknown values are
// treated as free.
func Normalize(raw string) Tier {
	switch Tier(raw) {
	case Free, Pro:
		return Tier(raw)
	default:
		return Free
	}
}
