package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/sirupsen/logrus"
)

// Sign returns the hex HMAC-SHA256 of "orderID|paymentID" under secret,
// the proof the gateway hands back to the client after checkout.
func Sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier checks payment signatures.  TestMode accepts any non-empty
// signature; configuration refuses it in production.
type Verifier struct {
	Secret   string
	TestMode bool
}

func (v Verifier) Verify(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	if v.TestMode {
		logrus.WithField("gateway_order_id", orderID).Warn("payment signature accepted in test mode")
		return true
	}
	expected := Sign(orderID, paymentID, v.Secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
