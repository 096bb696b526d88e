package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTemplateRendersPurchaseConfirmation(t *testing.T) {
	var gotAddr, gotFrom string
	var gotMsg []byte
	p := NewSMTP(Config{Host: "smtp.test", Port: 2525, From: "WooASM <noreply@wooasm.com>"})
	p.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotMsg = addr, from, msg
		assert.Nil(t, a)
		assert.Equal(t, []string{"jane@example.com"}, to)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"jane@example.com"}, TemplatePurchaseConfirmation, map[string]any{
		"name":          "Jane",
		"plan":          "starter",
		"billing_cycle": "monthly",
		"ends_at":       "April 9, 2025",
		"license_key":   "WASM-AAAA-BBBB-CCCC",
		"dashboard_url": "https://wooasm.com/dashboard",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.test:2525", gotAddr)
	assert.Equal(t, "noreply@wooasm.com", gotFrom)
	msg := string(gotMsg)
	assert.True(t, strings.Contains(msg, "Subject: Your WooASM subscription is active"))
	assert.True(t, strings.Contains(msg, "WASM-AAAA-BBBB-CCCC"))
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("missing", nil)
	assert.Error(t, err)
}

func TestSendWithoutRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.test", Port: 25})
	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}
