package webhook_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/stretchr/testify/assert"
)

func TestDeliveryError(t *testing.T) {
	t.Run("config errors are not retryable", func(t *testing.T) {
		derr := webhook.NewConfigError("Webhook not found", nil)
		assert.Equal(t, webhook.ConfigError, derr.Kind)
		assert.False(t, derr.Retryable())
		assert.Equal(t, "Webhook not found", derr.Error())
	})

	t.Run("transport errors are retryable and unwrap", func(t *testing.T) {
		cause := errors.New("dial tcp: connection refused")
		derr := webhook.NewTransportError("Network error", cause)
		assert.True(t, derr.Retryable())
		assert.ErrorIs(t, derr, cause)
		assert.Equal(t, fmt.Sprintf("Network error: %v", cause), derr.Error())
	})

	t.Run("application errors carry the status code", func(t *testing.T) {
		derr := webhook.NewApplicationError(503)
		assert.True(t, derr.Retryable())
		assert.Equal(t, "HTTP 503", derr.Message)
	})
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "config", webhook.ConfigError.String())
	assert.Equal(t, "transport", webhook.TransportError.String())
	assert.Equal(t, "application", webhook.ApplicationError.String())
}
