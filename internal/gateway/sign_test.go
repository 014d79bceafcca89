package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignKVCanonicalization(t *testing.T) {
	payload := map[string]any{
		"status":     "succeeded",
		"payment_id": "mock_abc123",
		"amount":     14997.0,
	}

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("amount=14997&payment_id=mock_abc123&status=succeeded"))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, SignKV(payload, "secret"))
}

func TestSignSortedJSONCanonicalization(t *testing.T) {
	payload := map[string]any{
		"payment_status": "finished",
		"invoice_id":     float64(123456),
	}

	// encoding/json sorts map keys and emits no whitespace
	mac := hmac.New(sha512.New, []byte("ipn-secret"))
	mac.Write([]byte(`{"invoice_id":123456,"payment_status":"finished"}`))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, SignSortedJSON(payload, "ipn-secret"))
}

func TestCanonicalizationsAreNotInterchangeable(t *testing.T) {
	payload := map[string]any{"payment_id": "p1", "status": "succeeded"}
	require.NotEqual(t, SignKV(payload, "s"), SignSortedJSON(payload, "s"))
}

func TestVerifyRejectsEmpty(t *testing.T) {
	assert.False(t, verify("", "sig"))
	assert.False(t, verify("expected", ""))
	assert.True(t, verify("same", "same"))
	assert.False(t, verify("a", "b"))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "abc", formatValue("abc"))
	assert.Equal(t, "14997", formatValue(14997.0))
	assert.Equal(t, "14997.5", formatValue(14997.5))
	assert.Equal(t, "true", formatValue(true))
}
