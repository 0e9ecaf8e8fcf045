package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DefaultSignatureTolerance = 5 * time.Minute

// SignatureError means the webhook was not verified. Nothing may be processed.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string { return "webhook signature: " + e.Reason }

// Verifier checks Stripe-style signature headers:
//
//	t=<unix seconds>,v1=<hex hmac-sha256 of "<t>.<raw body>">[,v1=...]
//
// Any header it cannot parse is a failure.
type Verifier struct {
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	return &Verifier{tolerance: tolerance, now: time.Now}
}

func (v *Verifier) Valid(payload []byte, header, secret string) bool {
	return v.Verify(payload, header, secret) == nil
}

func (v *Verifier) Verify(payload []byte, header, secret string) error {
	if secret == "" {
		return &SignatureError{Reason: "no signing secret configured"}
	}
	ts, sigs, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	expected := computeSignature(ts, payload, secret)
	matched := false
	for _, sig := range sigs {
		if hmac.Equal(expected, sig) {
			matched = true
		}
	}
	if !matched {
		return &SignatureError{Reason: "no matching signature"}
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > v.tolerance {
		return &SignatureError{Reason: fmt.Sprintf("timestamp outside tolerance (%s)", v.tolerance)}
	}
	return nil
}

// Sign builds a header for payload; used by tooling and tests.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeSignature(ts, payload, secret)))
}

func computeSignature(ts int64, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, [][]byte, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil, &SignatureError{Reason: "missing header"}
	}

	var (
		ts    int64
		hasTS bool
		sigs  [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, nil, &SignatureError{Reason: "malformed header"}
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil || hasTS {
				return 0, nil, &SignatureError{Reason: "invalid timestamp"}
			}
			ts, hasTS = n, true
		case "v1":
			b, err := hex.DecodeString(val)
			if err != nil || len(b) != sha256.Size {
				// a corrupt v1 never matches; keep looking at the others
				continue
			}
			sigs = append(sigs, b)
		default:
			// other schemes (v0 test signatures) are ignored
		}
	}
	if !hasTS {
		return 0, nil, &SignatureError{Reason: "missing timestamp"}
	}
	if len(sigs) == 0 {
		return 0, nil, &SignatureError{Reason: "no v1 signature"}
	}
	return ts, sigs, nil
}
