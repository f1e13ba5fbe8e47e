// Package signature implements timestamped HMAC-SHA256 webhook signatures in
// the "t=<unix>,v1=<hex>" header format.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformed = errors.New("signature: malformed header")
	ErrMismatch  = errors.New("signature: no matching signature")
	ErrExpired   = errors.New("signature: timestamp outside tolerance")
)

// DefaultTolerance bounds how old a signed payload may be.
const DefaultTolerance = 5 * time.Minute

func compute(secret, payload []byte, ts int64) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Sign returns the header value for payload signed at ts.
func Sign(secret, payload []byte, ts time.Time) string {
	unix := ts.Unix()
	return fmt.Sprintf("t=%d,v1=%s", unix, hex.EncodeToString(compute(secret, payload, unix)))
}

// Verify checks header against payload. Any v1 entry may match, which allows
// secret rotation with two signatures in flight.
func Verify(secret, payload []byte, header string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrMalformed
	}
	var (
		ts   int64
		sigs [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformed
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrMalformed
			}
			ts = n
		case "v1":
			b, err := hex.DecodeString(v)
			if err != nil {
				return ErrMalformed
			}
			sigs = append(sigs, b)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrMalformed
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return ErrExpired
		}
	}

	want := compute(secret, payload, ts)
	for _, s := range sigs {
		if hmac.Equal(s, want) {
			return nil
		}
	}
	return ErrMismatch
}
