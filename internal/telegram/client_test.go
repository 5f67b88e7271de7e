package telegram

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"matchbell/pkg/logx"
)

const testToken = "123456:ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789abc"

func newMockedClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	c := New(Config{Token: testToken, Transport: mt, MaxRetries: 1}, logx.Nop())
	return c, mt
}

func apiURL(method string) string {
	return "https://api.telegram.org/bot" + testToken + "/" + method
}

func TestValidateToken(t *testing.T) {
	t.Parallel()
	if err := ValidateToken(testToken); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	invalid := []string{"", "123456", "abc:def", "123456:short"}
	for _, tok := range invalid {
		if err := ValidateToken(tok); err == nil {
			t.Fatalf("ValidateToken(%q) accepted", tok)
		}
	}
}

func TestValidateRecipient(t *testing.T) {
	t.Parallel()
	// Any positive integer chat id is addressable; the 5-15 digit rule for
	// subscriber ids is enforced upstream in model.ValidateUserID.
	valid := []string{"123456789", "12345", "1", "42", "@valid_user", "@abcd"}
	for _, r := range valid {
		if err := ValidateRecipient(r); err != nil {
			t.Fatalf("ValidateRecipient(%q): %v", r, err)
		}
	}
	invalid := []string{"", "0", "-5", "007", "abc", "12a4", "@ab", "@1user", "@" + strings.Repeat("a", 31)}
	for _, r := range invalid {
		if err := ValidateRecipient(r); err == nil {
			t.Fatalf("ValidateRecipient(%q) accepted", r)
		}
	}
}

func TestSendRejectsBadRecipientWithoutNetwork(t *testing.T) {
	t.Parallel()
	c, mt := newMockedClient(t)

	for _, recipient := range []string{"0", "-5", "abc", "@ab"} {
		err := c.Send(context.Background(), recipient, "hello")
		var de *DeliveryError
		require.ErrorAs(t, err, &de)
		require.True(t, de.Terminal)
	}
	require.Zero(t, mt.GetTotalCallCount(), "invalid recipients must not reach the API")
}

func TestSendRejectsOversizeMessageWithoutNetwork(t *testing.T) {
	t.Parallel()
	c, mt := newMockedClient(t)

	err := c.Send(context.Background(), "123456789", strings.Repeat("a", 5000))
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	require.True(t, de.Terminal)
	require.Zero(t, mt.GetTotalCallCount())
}

func TestSendSuccess(t *testing.T) {
	t.Parallel()
	c, mt := newMockedClient(t)
	mt.RegisterResponder(http.MethodPost, apiURL("sendMessage"),
		httpmock.NewStringResponder(http.StatusOK,
			`{"ok":true,"result":{"message_id":42}}`))

	err := c.Send(context.Background(), "123456789", "match starting soon")
	require.NoError(t, err)
	require.Equal(t, 1, mt.GetTotalCallCount())
}

func TestSendBlockedRecipientSingleCall(t *testing.T) {
	t.Parallel()
	c, mt := newMockedClient(t)
	mt.RegisterResponder(http.MethodPost, apiURL("sendMessage"),
		httpmock.NewStringResponder(http.StatusForbidden,
			`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))

	err := c.Send(context.Background(), "123456789", "hello")
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	require.True(t, de.Terminal)
	require.Contains(t, de.Reason, "blocked")
	require.Equal(t, 1, mt.GetTotalCallCount(), "terminal 403 must not be retried")
}

func TestSendTerminalReasons(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status int
		reason string
	}{
		{http.StatusBadRequest, "bad request"},
		{http.StatusUnauthorized, "unauthorized"},
		{http.StatusForbidden, "blocked"},
		{http.StatusNotFound, "unknown"},
	}
	for _, tt := range tests {
		c, mt := newMockedClient(t)
		mt.RegisterResponder(http.MethodPost, apiURL("sendMessage"),
			httpmock.NewStringResponder(tt.status, `{"ok":false}`))

		err := c.Send(context.Background(), "123456789", "hello")
		var de *DeliveryError
		require.ErrorAs(t, err, &de)
		require.True(t, de.Terminal, "status %d must be terminal", tt.status)
		require.Contains(t, de.Reason, tt.reason)
	}
}

func TestChatReachable(t *testing.T) {
	t.Parallel()
	c, mt := newMockedClient(t)
	mt.RegisterResponder(http.MethodPost, apiURL("getChat"),
		httpmock.NewStringResponder(http.StatusOK,
			`{"ok":true,"result":{"id":123456789,"type":"private"}}`))

	require.True(t, c.ChatReachable(context.Background(), "123456789"))
	require.Equal(t, 1, mt.GetTotalCallCount())
}

func TestChatReachableUnknownChat(t *testing.T) {
	t.Parallel()
	c, mt := newMockedClient(t)
	mt.RegisterResponder(http.MethodPost, apiURL("getChat"),
		httpmock.NewStringResponder(http.StatusBadRequest,
			`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))

	require.False(t, c.ChatReachable(context.Background(), "123456789"))
	require.Equal(t, 1, mt.GetTotalCallCount(), "terminal 400 must not be retried")
}

func TestChatReachableInvalidRecipientSkipsNetwork(t *testing.T) {
	t.Parallel()
	c, mt := newMockedClient(t)

	require.False(t, c.ChatReachable(context.Background(), "abc"))
	require.False(t, c.ChatReachable(context.Background(), "@ab"))
	require.Zero(t, mt.GetTotalCallCount())
}

func TestMe(t *testing.T) {
	t.Parallel()
	c, mt := newMockedClient(t)
	mt.RegisterResponder(http.MethodPost, apiURL("getMe"),
		httpmock.NewStringResponder(http.StatusOK,
			`{"ok":true,"result":{"id":123456,"username":"matchbell_bot","is_bot":true}}`))

	info, err := c.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, "matchbell_bot", info.Username)
	require.True(t, info.IsBot)
}

func TestCallRejectsAPILevelFailure(t *testing.T) {
	t.Parallel()
	c, mt := newMockedClient(t)
	// HTTP 200 with ok:false still counts as a failure.
	mt.RegisterResponder(http.MethodPost, apiURL("getMe"),
		httpmock.NewStringResponder(http.StatusOK,
			`{"ok":false,"error_code":420,"description":"flood control"}`))

	_, err := c.Me(context.Background())
	require.ErrorContains(t, err, "flood control")
}
