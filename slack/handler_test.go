package slack

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justmike1/devx/commands"
)

const testSecret = "8f742231b10e8888abcd99yyyzzz85a5"

type fakeDispatcher struct {
	mu       sync.Mutex
	cmds     []commands.SlashCommand
	actions  []commands.Action
	messages []string
	reply    string
}

func (f *fakeDispatcher) Handle(ctx context.Context, cmd commands.SlashCommand, out commands.Responder) {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmd)
	f.mu.Unlock()
	if f.reply != "" {
		_ = out.Respond(ctx, commands.Reply{Text: f.reply})
	}
}

func (f *fakeDispatcher) HandleAction(_ context.Context, action commands.Action, _ commands.Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
}

func (f *fakeDispatcher) HandleMessage(_ context.Context, _, text string, _ commands.Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
}

func signedRequest(t *testing.T, contentType, body string) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "v0:%s:%s", ts, body)

	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

const formType = "application/x-www-form-urlencoded"

func slashBody(text, responseURL string) string {
	return url.Values{
		"command":      {"/devx"},
		"text":         {text},
		"channel_id":   {"C1"},
		"user_id":      {"U1"},
		"response_url": {responseURL},
	}.Encode()
}

func TestRejectsBadSignature(t *testing.T) {
	h := NewHandler(testSecret, nil, &fakeDispatcher{}, "")

	req := signedRequest(t, formType, slashBody("help", ""))
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = signedRequest(t, formType, slashBody("help", ""))
	req.Header.Del("X-Slack-Request-Timestamp")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSlashCommandRepliesThroughResponseURL(t *testing.T) {
	var posted map[string]interface{}
	var mu sync.Mutex
	responses := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		assert.NoError(t, json.Unmarshal(raw, &posted))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer responses.Close()

	d := &fakeDispatcher{reply: "✅ Added comment to ticket OPS-1"}
	h := NewHandler(testSecret, nil, d, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, formType, slashBody("update ticket OPS-1 deployed to prod", responses.URL)))
	h.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, d.cmds, 1)
	assert.Equal(t, commands.SubUpdate, d.cmds[0].Sub)
	assert.Equal(t, "OPS-1 deployed to prod", d.cmds[0].Rest)
	assert.Equal(t, "C1", d.cmds[0].ChannelID)
	assert.Equal(t, "U1", d.cmds[0].UserID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "in_channel", posted["response_type"])
	assert.Equal(t, "✅ Added comment to ticket OPS-1", posted["text"])
}

func TestInteractionPayload(t *testing.T) {
	d := &fakeDispatcher{}
	h := NewHandler(testSecret, nil, d, "")

	payload := `{
		"type": "block_actions",
		"user": {"id": "U1"},
		"channel": {"id": "C1"},
		"response_url": "https://hooks.slack.invalid/x",
		"actions": [{"action_id": "close_ticket_submit", "block_id": "b1", "value": "OPS-4", "type": "button"}],
		"state": {"values": {"close_reason": {"reason_input": {"type": "plain_text_input", "value": "Duplicate of OPS-2"}}}}
	}`
	body := url.Values{"payload": {payload}}.Encode()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, formType, body))
	h.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, d.actions, 1)
	got := d.actions[0]
	assert.Equal(t, commands.ActionCloseSubmit, got.ID)
	assert.Equal(t, "OPS-4", got.Value)
	assert.Equal(t, "U1", got.UserID)
	assert.Equal(t, "C1", got.ChannelID)
	assert.Equal(t, "Duplicate of OPS-2", got.Values[commands.BlockCloseReason][commands.ActionReasonInput])
}

func TestURLVerification(t *testing.T) {
	h := NewHandler(testSecret, nil, &fakeDispatcher{}, "")
	body := `{"type":"url_verification","token":"t","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P"}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, "application/json", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P", rec.Body.String())
}

func TestMessageEvents(t *testing.T) {
	d := &fakeDispatcher{}
	h := NewHandler(testSecret, nil, d, "UBOT")

	event := func(inner string) string {
		return `{"type":"event_callback","team_id":"T1","api_app_id":"A1","event":` + inner + `}`
	}
	for _, inner := range []string{
		`{"type":"message","channel":"C1","user":"U1","text":"help please","ts":"1.1"}`,
		`{"type":"message","channel":"C1","user":"U2","text":"help","bot_id":"B1","ts":"1.2"}`,
		`{"type":"message","channel":"C1","user":"UBOT","text":"help","ts":"1.3"}`,
		`{"type":"message","subtype":"message_changed","channel":"C1","ts":"1.4"}`,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, signedRequest(t, "application/json", event(inner)))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	h.Wait()

	assert.Equal(t, []string{"help please"}, d.messages)
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewHandler(testSecret, nil, &fakeDispatcher{}, "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slack/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
