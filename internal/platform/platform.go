// Package platform decides which supported helpdesk a page belongs to.
// Four independent strategies vote; a cached detector combines them.
package platform

// Kind identifies a supported helpdesk platform. The zero value means the
// page was not recognized and the assistant stays inactive.
type Kind string

const (
	// KindUnknown means no platform was recognized.
	KindUnknown Kind = ""
	// KindFreeScout is the self-hosted, server-rendered helpdesk.
	KindFreeScout Kind = "freescout"
	// KindHelpScout is the hosted React single-page app.
	KindHelpScout Kind = "helpscout"
)

// ParseKind maps a stored preference string to a Kind.
func ParseKind(s string) Kind {
	switch s {
	case string(KindFreeScout):
		return KindFreeScout
	case string(KindHelpScout):
		return KindHelpScout
	default:
		return KindUnknown
	}
}

// String returns the kind's tag, or "unknown" for the zero value.
func (k Kind) String() string {
	if k == KindUnknown {
		return "unknown"
	}
	return string(k)
}
