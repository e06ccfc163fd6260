// Package signature verifies PSP webhook signatures against the raw
// request body, before any JSON decoding touches the payload.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stable rejection reasons, safe to log and export as metric labels.
const (
	ReasonSignatureMissing    = "signature_missing"
	ReasonSignatureMismatch   = "signature_mismatch"
	ReasonTokenMismatch       = "token_mismatch"
	ReasonHeaderMalformed     = "header_malformed"
	ReasonTimestampOutOfRange = "timestamp_out_of_range"
)

// Rejection explains why a delivery failed verification. The reason is a
// stable code; the message carries detail for logs only.
type Rejection struct {
	Reason  string
	Message string
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return r.Reason
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

func reject(reason, message string) error {
	return &Rejection{Reason: reason, Message: message}
}

// ReasonOf extracts the stable rejection reason from an error, or "" when
// the error is not a verification rejection.
func ReasonOf(err error) string {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}

// PaystackVerifier checks the x-paystack-signature header, an HMAC-SHA512
// of the raw body keyed with the account secret, hex encoded.
type PaystackVerifier struct {
	secret []byte
}

func NewPaystackVerifier(secret string) (*PaystackVerifier, error) {
	if secret == "" {
		return nil, errors.New("paystack secret is required")
	}
	return &PaystackVerifier{secret: []byte(secret)}, nil
}

func (v *PaystackVerifier) Verify(body []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return reject(ReasonSignatureMissing, "x-paystack-signature header absent")
	}

	provided, err := hex.DecodeString(header)
	if err != nil {
		return reject(ReasonHeaderMalformed, "signature is not valid hex")
	}

	mac := hmac.New(sha512.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return reject(ReasonSignatureMismatch, "hmac does not match body")
	}
	return nil
}

// FlutterwaveVerifier checks the verif-hash header, a static shared token
// configured on the Flutterwave dashboard. The body is not signed.
type FlutterwaveVerifier struct {
	token []byte
}

func NewFlutterwaveVerifier(token string) (*FlutterwaveVerifier, error) {
	if token == "" {
		return nil, errors.New("flutterwave verif-hash is required")
	}
	return &FlutterwaveVerifier{token: []byte(token)}, nil
}

func (v *FlutterwaveVerifier) Verify(header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return reject(ReasonSignatureMissing, "verif-hash header absent")
	}
	if subtleCompare([]byte(header), v.token) {
		return nil
	}
	return reject(ReasonTokenMismatch, "verif-hash does not match configured token")
}

// DefaultStripeTolerance bounds how old a Stripe delivery may be before it
// is treated as a replay.
const DefaultStripeTolerance = 5 * time.Minute

// StripeVerifier checks the Stripe-Signature header: comma-separated
// t=<unix> and v1=<hex hmac-sha256 of "<t>.<body>"> pairs. Deliveries
// older than the tolerance are rejected even with a valid signature.
type StripeVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewStripeVerifier(secret string, tolerance time.Duration, now func() time.Time) (*StripeVerifier, error) {
	if secret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	if tolerance <= 0 {
		tolerance = DefaultStripeTolerance
	}
	if now == nil {
		now = time.Now
	}
	return &StripeVerifier{secret: []byte(secret), tolerance: tolerance, now: now}, nil
}

func (v *StripeVerifier) Verify(body []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return reject(ReasonSignatureMissing, "stripe-signature header absent")
	}

	var timestamp int64
	var haveTimestamp bool
	var candidates [][]byte

	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return reject(ReasonHeaderMalformed, "expected key=value pairs")
		}
		switch parts[0] {
		case "t":
			ts, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return reject(ReasonHeaderMalformed, "timestamp is not an integer")
			}
			timestamp = ts
			haveTimestamp = true
		case "v1":
			decoded, err := hex.DecodeString(parts[1])
			if err != nil {
				return reject(ReasonHeaderMalformed, "v1 signature is not valid hex")
			}
			candidates = append(candidates, decoded)
		default:
			// Unknown schemes (v0 test-mode signatures) are ignored.
		}
	}

	if !haveTimestamp {
		return reject(ReasonHeaderMalformed, "timestamp component absent")
	}
	if len(candidates) == 0 {
		return reject(ReasonSignatureMissing, "no v1 signature present")
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return reject(ReasonTimestampOutOfRange, "delivery outside replay window")
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		if hmac.Equal(candidate, expected) {
			return nil
		}
	}
	return reject(ReasonSignatureMismatch, "no v1 signature matches body")
}

func subtleCompare(a, b []byte) bool {
	return hmac.Equal(a, b)
}
