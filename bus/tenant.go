package bus

import "sync"

// tenantReverseCache resolves a tenant from a link or campaign id for event
// kinds that don't carry tenant_id directly (click.recorded,
// campaign.goal.reached), populated opportunistically from the link.* and
// campaign.created events the router has already observed. A cache miss is
// not fatal — the caller skips dispatch for that message and logs a
// warning, exactly as a genuinely orphaned event would be handled.
type tenantReverseCache struct {
	mu         sync.RWMutex
	byLinkID   map[string]string
	byCampaign map[string]string
}

func newTenantReverseCache() *tenantReverseCache {
	return &tenantReverseCache{
		byLinkID:   make(map[string]string),
		byCampaign: make(map[string]string),
	}
}

func (c *tenantReverseCache) observe(msg InboundMessage) {
	tenantID, _ := msg.Data["teamId"].(string)
	if tenantID == "" {
		return
	}

	switch msg.Type {
	case "link.created", "link.updated":
		if linkID, ok := msg.Data["linkId"].(string); ok && linkID != "" {
			c.mu.Lock()
			c.byLinkID[linkID] = tenantID
			c.mu.Unlock()
		}
	case "campaign.created":
		if campaignID, ok := msg.Data["campaignId"].(string); ok && campaignID != "" {
			c.mu.Lock()
			c.byCampaign[campaignID] = tenantID
			c.mu.Unlock()
		}
	}
}

func (c *tenantReverseCache) tenantForLink(linkID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byLinkID[linkID]
	return t, ok
}

func (c *tenantReverseCache) tenantForCampaign(campaignID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byCampaign[campaignID]
	return t, ok
}

// resolveTenant extracts the tenant id a message should be routed under,
// using the reverse cache for the two upstream types that don't carry it
// directly in data.teamId.
func resolveTenant(msg InboundMessage, cache *tenantReverseCache) (string, bool) {
	if tenantID, ok := msg.Data["teamId"].(string); ok && tenantID != "" {
		return tenantID, true
	}

	switch msg.Type {
	case "click.recorded":
		if linkID, ok := msg.Data["linkId"].(string); ok {
			return cache.tenantForLink(linkID)
		}
	case "campaign.goal.reached":
		if campaignID, ok := msg.Data["campaignId"].(string); ok {
			return cache.tenantForCampaign(campaignID)
		}
	}
	return "", false
}
