package alert

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderSignature = "X-Billing-Signature"
	HeaderTimestamp = "X-Billing-Timestamp"
	HeaderAlertID   = "X-Billing-Alert-ID"
)

// Sign computes hex(HMAC-SHA256(secret, "<unix ts>.<payload>")).
func Sign(secret string, ts time.Time, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	h.Write([]byte("."))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks the signature headers of a received alert.
// Timestamps older than maxAge, or more than a minute in the future, are rejected.
func Verify(secret string, header http.Header, payload []byte, maxAge time.Duration) error {
	ts, err := strconv.ParseInt(header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrSignatureMismatch)
	}
	sent := time.Unix(ts, 0)
	if age := time.Since(sent); maxAge > 0 && (age > maxAge || age < -time.Minute) {
		return fmt.Errorf("%w: timestamp outside window", ErrSignatureMismatch)
	}
	want := Sign(secret, sent, payload)
	if !hmac.Equal([]byte(want), []byte(header.Get(HeaderSignature))) {
		return ErrSignatureMismatch
	}
	return nil
}
