package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadintake/backend/internal/config"
	"leadintake/backend/internal/domain"
	"leadintake/backend/internal/ratelimit"
)

type capturedRequest struct {
	URL  *url.URL
	Body map[string]any
}

func captureServer(t *testing.T, status int) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	captured := make(chan capturedRequest, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		captured <- capturedRequest{URL: r.URL, Body: body}
		w.WriteHeader(status)
		_, _ = w.Write([]byte("upstream says no"))
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func fullLead() *domain.Lead {
	return &domain.Lead{
		Name:               "Jo",
		Email:              " Jo@Example.com ",
		Company:            "Acme Cafes",
		Suburb:             "Paddington",
		WidthM:             "6.0",
		Style:              "Skillion",
		Roof:               "Timber",
		EnquiryType:        "commercial",
		EventID:            "evt-123",
		AttachmentsSummary: "1 file: deck.jpg",
		Message:            "Need shade for the courtyard",
		Client: domain.ClientContext{
			IP:        "203.0.113.7",
			UserAgent: "Mozilla/5.0",
			SourceURL: "https://www.sunshadepergolas.com.au/contact",
			FBP:       "fb.1.1700000000.123",
		},
	}
}

func TestChatChannel(t *testing.T) {
	server, captured := captureServer(t, http.StatusOK)
	ch := NewChatChannel(config.ChatConfig{WebhookURL: server.URL}, server.Client())

	require.True(t, ch.Enabled())
	require.NoError(t, ch.Deliver(context.Background(), fullLead()))

	req := <-captured
	text, _ := req.Body["text"].(string)
	assert.Contains(t, text, "New Commercial enquiry")
	assert.Contains(t, text, "Company: Acme Cafes")
	assert.Contains(t, text, "Size: 6.0m W")
	assert.Contains(t, text, "Attachments: 1 file: deck.jpg")
	assert.Contains(t, text, "Need shade for the courtyard")
	assert.NotContains(t, text, "Add-ons")

	assert.False(t, NewChatChannel(config.ChatConfig{}, nil).Enabled())
}

func TestChatChannelPacing(t *testing.T) {
	server, _ := captureServer(t, http.StatusOK)
	ch := NewChatChannel(config.ChatConfig{WebhookURL: server.URL, MinInterval: time.Hour}, server.Client())

	require.NoError(t, ch.Deliver(context.Background(), fullLead()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, ch.Deliver(ctx, fullLead()))
}

func TestSheetChannel(t *testing.T) {
	server, captured := captureServer(t, http.StatusOK)
	ch := NewSheetChannel(config.SheetConfig{WebhookURL: server.URL}, server.Client())
	ch.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.FixedZone("AEST", 10*3600)) }

	require.NoError(t, ch.Deliver(context.Background(), fullLead()))

	req := <-captured
	assert.Equal(t, "2024-02-29T23:30:00Z", req.Body["timestamp"])
	assert.Equal(t, "203.0.113.7", req.Body["ip"])
	assert.Equal(t, "Jo", req.Body["name"])
	assert.Equal(t, "evt-123", req.Body["event_id"])
	assert.Equal(t, "", req.Body["addons"])
}

func TestSheetChannelFailure(t *testing.T) {
	server, _ := captureServer(t, http.StatusBadGateway)
	ch := NewSheetChannel(config.SheetConfig{WebhookURL: server.URL}, server.Client())

	err := ch.Deliver(context.Background(), fullLead())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, "HTTP 502: upstream says no", err.Error())
}

func TestConversionChannel(t *testing.T) {
	server, captured := captureServer(t, http.StatusOK)
	cfg := config.ConversionConfig{
		AccessToken:   "tok&en",
		PixelID:       "123456",
		APIVersion:    "v19.0",
		Endpoint:      server.URL,
		TestEventCode: "TEST42",
	}
	ch := NewConversionChannel(cfg, server.Client())
	ch.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.True(t, ch.Enabled())
	require.NoError(t, ch.Deliver(context.Background(), fullLead()))

	req := <-captured
	assert.Equal(t, "/v19.0/123456/events", req.URL.Path)
	assert.Equal(t, "tok&en", req.URL.Query().Get("access_token"))
	assert.Equal(t, "TEST42", req.Body["test_event_code"])

	data := req.Body["data"].([]any)
	require.Len(t, data, 1)
	event := data[0].(map[string]any)
	assert.Equal(t, "Lead", event["event_name"])
	assert.Equal(t, "evt-123", event["event_id"])
	assert.Equal(t, "website", event["action_source"])
	assert.EqualValues(t, 1700000000, event["event_time"])
	assert.Equal(t, "https://www.sunshadepergolas.com.au/contact", event["event_source_url"])

	user := event["user_data"].(map[string]any)
	assert.Equal(t, []any{HashEmail("jo@example.com")}, user["em"])
	assert.Equal(t, "203.0.113.7", user["client_ip_address"])
	assert.Equal(t, "fb.1.1700000000.123", user["fbp"])
	assert.NotContains(t, user, "fbc")

	custom := event["custom_data"].(map[string]any)
	assert.Equal(t, "Commercial enquiry", custom["content_name"])
}

func TestConversionChannelUnknownClient(t *testing.T) {
	ch := NewConversionChannel(config.ConversionConfig{AccessToken: "t", PixelID: "p"}, nil)
	lead := fullLead()
	lead.Client.IP = ratelimit.UnknownClient

	event := ch.event(lead)
	assert.Empty(t, event.Data[0].UserData.ClientIP)

	assert.False(t, NewConversionChannel(config.ConversionConfig{AccessToken: "t"}, nil).Enabled())
}

func TestHashEmail(t *testing.T) {
	assert.Equal(t, HashEmail("jo@example.com"), HashEmail("  JO@Example.COM "))
	assert.Equal(t, "973dfe463ec85785f5f95af5ba3906eedb2d931c24e69824a89ea65dba4e813b", HashEmail("test@example.com"))
}
