package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SignKV canonicalizes the payload as sorted "k=v" pairs joined by "&" and
// returns the hex HMAC-SHA256. Wire contract of the mock and CryptoCloud
// variants; not interchangeable with SignSortedJSON.
func SignKV(payload map[string]any, secret string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatValue(payload[k]))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignSortedJSON canonicalizes the payload as compact sorted-key JSON and
// returns the hex HMAC-SHA512, per the NowPayments IPN contract.
// encoding/json already emits map keys sorted and without whitespace.
func SignSortedJSON(payload map[string]any, secret string) string {
	body, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(expected, signature string) bool {
	if expected == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// formatValue renders a decoded-JSON value the way providers sign them:
// numbers without a trailing ".0", everything else via fmt.
func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// stringID renders a provider identifier that may arrive as string or number.
func stringID(v any) string {
	if v == nil {
		return ""
	}
	return formatValue(v)
}
