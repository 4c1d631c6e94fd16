package bus

import (
	"encoding/json"
	"fmt"
	"time"
)

// InboundMessage is the event envelope arriving from the bus, shared by all
// four upstream topic exchanges.
type InboundMessage struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func decodeMessage(body []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("decoding bus message: %w", err)
	}
	if msg.Type == "" {
		return InboundMessage{}, fmt.Errorf("bus message missing type")
	}
	return msg, nil
}

// upstreamEventMapping is the closed table translating an upstream exchange
// event type to the webhook event kind subscribers register against.
// Upstream types not present here are acked silently — they carry no
// webhook-relevant meaning in this version.
var upstreamEventMapping = map[string]string{
	"link.created":          "link.created",
	"link.updated":          "link.updated",
	"link.deleted":          "link.deleted",
	"click.recorded":        "link.clicked",
	"campaign.created":      "campaign.started",
	"campaign.goal.reached": "conversion.tracked",
	"user.created":          "user.invited",
}

// mapEventKind translates an upstream message type to its webhook event
// kind. ok is false for upstream types outside the fixed mapping table.
func mapEventKind(upstreamType string) (kind string, ok bool) {
	kind, ok = upstreamEventMapping[upstreamType]
	return kind, ok
}

// projectData builds the event-specific data payload sent to subscribers: a
// common {eventId, eventType, timestamp} envelope plus the per-kind fields
// the mapping table fixes, pulled from the raw upstream data.
func projectData(msg InboundMessage, webhookKind string) (json.RawMessage, error) {
	out := map[string]any{
		"eventId":   msg.ID,
		"eventType": webhookKind,
		"timestamp": msg.Timestamp.UTC().Format(time.RFC3339),
	}

	switch webhookKind {
	case "link.created", "link.updated", "link.deleted":
		copyFields(out, msg.Data, "linkId", "shortCode", "originalUrl", "teamId", "userId", "tags")
	case "link.clicked":
		copyFields(out, msg.Data, "linkId", "shortCode", "country", "city", "device", "browser", "referer")
	case "campaign.started":
		copyFields(out, msg.Data, "campaignId", "name", "teamId")
	case "conversion.tracked":
		copyFields(out, msg.Data, "campaignId", "goalId", "goalName", "currentValue", "targetValue", "userId")
	case "user.invited":
		copyFields(out, msg.Data, "userId", "email", "teamId")
	}

	return json.Marshal(out)
}

// copyFields copies any of keys present in src into dst, leaving absent
// optional fields (e.g. originalUrl, tags) out of the projection entirely.
func copyFields(dst, src map[string]any, keys ...string) {
	for _, k := range keys {
		if v, ok := src[k]; ok {
			dst[k] = v
		}
	}
}
