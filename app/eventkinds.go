package app

// KnownEventKinds is the closed set of webhook event kinds a subscription
// may register for. This is the full recognized set, not just the subset
// the current upstream mapping table actually produces — a subscriber may
// register for a kind no routing yet fires, per the platform's forward-
// compatibility stance.
var KnownEventKinds = map[string]bool{
	"link.created":       true,
	"link.clicked":       true,
	"link.updated":       true,
	"link.deleted":       true,
	"link.milestone":     true,
	"qr.scanned":         true,
	"page.published":     true,
	"page.viewed":        true,
	"comment.created":    true,
	"user.invited":       true,
	"campaign.started":   true,
	"campaign.ended":     true,
	"form.submitted":     true,
	"conversion.tracked": true,
}

func IsKnownEventKind(kind string) bool {
	return KnownEventKinds[kind]
}
