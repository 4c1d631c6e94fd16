package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage_Valid(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"link.created","timestamp":"2026-01-01T00:00:00Z","data":{"teamId":"tenant-1","linkId":"link-1"}}`)

	msg, err := decodeMessage(body)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", msg.ID)
	assert.Equal(t, "link.created", msg.Type)
	assert.Equal(t, "tenant-1", msg.Data["teamId"])
}

func TestDecodeMessage_MissingTypeRejected(t *testing.T) {
	body := []byte(`{"id":"evt_1","data":{}}`)
	_, err := decodeMessage(body)
	assert.Error(t, err)
}

func TestDecodeMessage_MalformedJSONRejected(t *testing.T) {
	_, err := decodeMessage([]byte(`{not json`))
	assert.Error(t, err)
}

func TestMapEventKind_TranslatesUpstreamType(t *testing.T) {
	kind, ok := mapEventKind("click.recorded")
	assert.True(t, ok)
	assert.Equal(t, "link.clicked", kind)

	kind, ok = mapEventKind("campaign.goal.reached")
	assert.True(t, ok)
	assert.Equal(t, "conversion.tracked", kind)
}

func TestMapEventKind_UnknownUpstreamTypeNotOK(t *testing.T) {
	_, ok := mapEventKind("not.a.real.upstream.type")
	assert.False(t, ok)
}

func TestProjectData_LinkCreated(t *testing.T) {
	msg := InboundMessage{
		ID:        "evt_1",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Data: map[string]any{
			"teamId":   "tenant-1",
			"linkId":   "link-1",
			"shortCode": "abc",
			"userId":   "user-1",
			"tags":     []any{"x"},
		},
	}

	data, err := projectData(msg, "link.created")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"eventId":"evt_1",
		"eventType":"link.created",
		"timestamp":"2026-01-01T00:00:00Z",
		"teamId":"tenant-1",
		"linkId":"link-1",
		"shortCode":"abc",
		"userId":"user-1",
		"tags":["x"]
	}`, string(data))
}

func TestProjectData_LinkClicked_NoTeamIDField(t *testing.T) {
	msg := InboundMessage{
		ID:        "evt_2",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Data: map[string]any{
			"linkId":  "link-1",
			"country": "US",
		},
	}

	data, err := projectData(msg, "link.clicked")
	require.NoError(t, err)
	assert.NotContains(t, string(data), "teamId")
	assert.Contains(t, string(data), `"country":"US"`)
}

func TestProjectData_OmitsAbsentOptionalFields(t *testing.T) {
	data, err := projectData(InboundMessage{ID: "evt_3", Data: map[string]any{}}, "link.created")
	require.NoError(t, err)
	assert.NotContains(t, string(data), "originalUrl")
	assert.NotContains(t, string(data), "tags")
}
