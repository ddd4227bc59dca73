package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "verity/pkg/domain-errors"
)

func TestNewClient(t *testing.T) {
	now := time.Now()

	c, err := NewClient("client-1", "  Acme Bank ", "vk_abc", "$2a$hash", now)
	require.NoError(t, err)
	assert.Equal(t, "Acme Bank", c.Name)
	assert.True(t, c.Active)

	_, err = NewClient("client-1", " ", "vk_abc", "$2a$hash", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewClient("client-1", "Acme", "", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestNewWebhookConfig(t *testing.T) {
	t.Run("normalizes events", func(t *testing.T) {
		cfg, err := NewWebhookConfig("https://hooks.acme.example/verity", "s3cret", true,
			[]string{" Verification.Approved", "verification.approved", "", "verification.expired"})
		require.NoError(t, err)
		assert.Equal(t, []string{"verification.approved", "verification.expired"}, cfg.Events)
		assert.True(t, cfg.Subscribed("verification.approved"))
		assert.False(t, cfg.Subscribed("verification.rejected"))
		assert.True(t, cfg.Deliverable())
	})

	t.Run("rejects plain http", func(t *testing.T) {
		_, err := NewWebhookConfig("http://hooks.acme.example", "s3cret", true, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("enabled needs a secret", func(t *testing.T) {
		_, err := NewWebhookConfig("https://hooks.acme.example", "", true, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("disabled config is not deliverable", func(t *testing.T) {
		cfg, err := NewWebhookConfig("", "", false, nil)
		require.NoError(t, err)
		assert.False(t, cfg.Deliverable())
		var nilCfg *WebhookConfig
		assert.False(t, nilCfg.Deliverable())
	})
}
