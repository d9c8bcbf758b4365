package export

import (
	"mapchat/api/internal/tier"
)

// Kind groups exports by the notice shown when they are refused.
type Kind string

const (
	KindFeatures      Kind = "features"
	KindVisualization Kind = "visualization"
	KindConfig        Kind = "config"
	KindDashboard     Kind = "dashboard"
	KindComments      Kind = "comments"
)

// KindOf maps a format onto its export kind.
func KindOf(f Format) Kind {
	switch f {
	case FormatPNG:
		return KindVisualization
	case FormatJSON:
		return KindConfig
	case FormatPDF:
		return KindDashboard
	default:
		return KindFeatures
	}
}

const deniedTitle = "Pro feature"

var deniedMessages = map[Kind]string{
	KindFeatures:      "Upgrade to export map features.",
	KindVisualization: "Upgrade to export visualizations.",
	KindConfig:        "Upgrade to export configs.",
	KindDashboard:     "Upgrade to export the full dashboard as PDF.",
	KindComments:      "Upgrade to export comments",
}

// DeniedError carries the user-visible notice for a refused export.
type DeniedError struct {
	Kind    Kind
	Tier    tier.Tier
	Title   string
	Message string
}

func (e *DeniedError) Error() string {
	return string(e.Kind) + " export requires pro tier"
}

func (e *DeniedError) Unwrap() error {
	return ErrAuthorizationDenied
}

// Gate authorizes exports by tier. It knows nothing about the exports it guards.
type Gate struct {
	// OnDenied, if set, observes every refusal.
	OnDenied func(kind Kind, t tier.Tier)
}

// Run invokes fn exactly once when t may export kind. Otherwise fn is never
// called and a *DeniedError is returned.
func (g Gate) Run(t tier.Tier, kind Kind, fn func() (*Result, error)) (*Result, error) {
	action := tier.ActionExport
	if kind == KindComments {
		action = tier.ActionExportComments
	}
	if !tier.Can(t, action) {
		if g.OnDenied != nil {
			g.OnDenied(kind, t)
		}
		return nil, &DeniedError{Kind: kind, Tier: t, Title: deniedTitle, Message: deniedMessages[kind]}
	}
	return fn()
}
