package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-jobqueue/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#alerts",
		Username:   "bot",
		Timeout:    time.Second,
	})
	require.NoError(t, err)

	msg := client.formatMessage(notify.JobFailurePayload{
		JobID:        "123",
		JobType:      "webhook.deliver",
		PartitionKey: "tenant-1",
		Error:        "boom <x>",
		ErrorClass:   "handler",
		Attempts:     3,
		MaxAttempts:  3,
		Metadata:     map[string]string{"b": "2", "a": "1"},
	})

	assert.Equal(t, "bot", msg["username"])
	assert.Equal(t, "#alerts", msg["channel"])

	text, ok := msg["text"].(string)
	require.True(t, ok)
	for _, want := range []string{"Job failed", "123", "webhook.deliver", "tenant-1", "3/3", "handler", "boom &lt;x&gt;"} {
		assert.Contains(t, text, want)
	}
	assert.Regexp(t, `(?s)a: 1.*b: 2`, text)
}

func TestFormatPartition(t *testing.T) {
	tcs := []struct {
		name   string
		key    string
		prefix string
		want   string
	}{
		{name: "with link", key: "t-1", prefix: "https://ops.example/tenants", want: "<https://ops.example/tenants/t-1|t-1>"},
		{name: "invalid prefix", key: "t-2", prefix: "not a url", want: "t-2"},
		{name: "escaped", key: "a&b", want: "a&amp;b"},
		{name: "empty", key: " ", prefix: "https://ops.example/tenants", want: ""},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/x", PartitionURLPrefix: tc.prefix})
			require.NoError(t, err)
			assert.Equal(t, tc.want, client.formatPartition(tc.key))
		})
	}
}

func TestSendJobFailurePostsToWebhook(t *testing.T) {
	got := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "j1"}))
	body := <-got
	assert.Equal(t, "jobqueue", body["username"])
	assert.Contains(t, body["text"], "j1")
}
