package gateway

import (
	"fmt"

	"github.com/rakhadi/go-shop-payments.git/internal/config"
	"github.com/rakhadi/go-shop-payments.git/internal/payments"
)

// FromConfig resolves the configured gateway variant once at startup.
// Selection is explicit configuration handed into constructors; business
// logic never looks anything up ambiently.
func FromConfig(cfg config.Config) (payments.Gateway, error) {
	switch cfg.Gateway {
	case "", "mock":
		return Mock{}, nil
	case "nowpayments":
		if cfg.NowPaymentsAPIKey == "" {
			return nil, fmt.Errorf("gateway nowpayments: NOWPAYMENTS_API_KEY is required")
		}
		return NewNowPayments(cfg.NowPaymentsAPIKey, cfg.NowPaymentsIPNURL, cfg.NowPaymentsSuccess, cfg.NowPaymentsCancel), nil
	case "cryptocloud":
		if cfg.CryptoCloudAPIKey == "" || cfg.CryptoCloudSecret == "" || cfg.CryptoCloudShopID == "" {
			return nil, fmt.Errorf("gateway cryptocloud: api key, secret key and shop id are required")
		}
		return NewCryptoCloud(cfg.CryptoCloudAPIKey, cfg.CryptoCloudSecret, cfg.CryptoCloudShopID), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.Gateway)
	}
}
