package logger_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/courseforge/courseforge/pkg/logger"
)

func TestError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Attr{}, logger.Error(nil))

	attr := logger.Error(errors.New("boom"))
	assert.Equal(t, "error", attr.Key)
}

func TestIDHelpersSkipEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Attr{}, logger.UserID(""))
	assert.Equal(t, slog.Attr{}, logger.SessionID(""))
	assert.Equal(t, slog.Attr{}, logger.SubscriptionID(""))

	assert.Equal(t, "user_id", logger.UserID("u1").Key)
	assert.Equal(t, "session_id", logger.SessionID("cs_1").Key)
	assert.Equal(t, "subscription_id", logger.SubscriptionID("sub_1").Key)
}

func TestDomainAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "plan_type", logger.PlanType("pro").Key)
	assert.Equal(t, "event_type", logger.EventType("checkout.session.completed").Key)
	assert.Equal(t, "component", logger.Component("reconciler").Key)
	assert.Equal(t, "amount", logger.Amount(5000).Key)
	assert.Equal(t, int64(5000), logger.Amount(5000).Value.Int64())
}
