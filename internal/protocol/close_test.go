package protocol

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		code int
		want CloseKind
	}{
		{CodeLoggedOut, CloseTerminal},
		{CodeForbidden, CloseTerminal},
		{CodeTimedOut, CloseTransient},
		{CodeConnectionClosed, CloseTransient},
		{CodeConnectionReplaced, CloseTransient},
		{CodeBadSession, CloseTransient},
		{CodeUnavailableService, CloseTransient},
		{CodeRestartRequired, CloseTransient},
		{0, CloseTransient},
		{999, CloseTransient},
	}

	for _, tt := range tests {
		t.Run(CodeName(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.code))
		})
	}
}

func TestIsTerminalAndSuppress(t *testing.T) {
	loggedOut := fmt.Errorf("session ended: %w", &CloseError{Code: CodeLoggedOut})
	timedOut := &CloseError{Code: CodeTimedOut, Reason: "keepalive"}

	assert.True(t, IsTerminal(loggedOut))
	assert.False(t, IsTerminal(timedOut))
	assert.False(t, IsTerminal(errors.New("rate-overlimit")))

	assert.False(t, Suppress(loggedOut))
	assert.True(t, Suppress(timedOut))
	assert.True(t, Suppress(errors.New("stream errored out")))
	assert.True(t, Suppress(context.Canceled))
	assert.True(t, Suppress(nil))
}

func TestCloseError(t *testing.T) {
	assert.Equal(t, "connection closed: timed_out (408): keepalive", (&CloseError{Code: 408, Reason: "keepalive"}).Error())
	assert.Equal(t, "connection closed: code_999 (999)", (&CloseError{Code: 999}).Error())
	assert.Equal(t, "terminal", (&CloseError{Code: 403}).Kind().String())
}

func TestNormalizeUserID(t *testing.T) {
	assert.Equal(t, "15551234567@s.whatsapp.net", NormalizeUserID("15551234567:12@s.whatsapp.net"))
	assert.Equal(t, "15551234567@s.whatsapp.net", NormalizeUserID("15551234567@s.whatsapp.net"))
	assert.Equal(t, "plain", NormalizeUserID("plain"))
	assert.Equal(t, "4930123456@s.whatsapp.net", UserIDFor("4930123456", "s.whatsapp.net"))
}
