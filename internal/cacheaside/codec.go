// Package cacheaside implements the cache-aside read path: entry
// encoding, miss handling with breakdown and penetration defenses,
// and asynchronous rebuilds.
package cacheaside

import (
	"encoding/json"
	"time"
)

// envelope wraps a value with a logical expiry. Entries stored in this
// form carry no cache-level TTL; the embedded timestamp is the sole
// authority on freshness.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	ExpireAt time.Time       `json:"expireAt"`
}

// Encode serializes a value as a plain cache record.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode deserializes a plain cache record.
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// EncodeWithExpiry wraps an already-encoded value in a logical-expiry
// envelope stamped ttl from now.
func EncodeWithExpiry(value []byte, ttl time.Duration) ([]byte, error) {
	return json.Marshal(envelope{
		Data:     value,
		ExpireAt: time.Now().Add(ttl),
	})
}

// DecodeEnvelope unwraps a logical-expiry record. ok == false means
// the bytes are malformed or in a legacy format without an expiry
// marker; callers treat that as expired/missing and rebuild, they
// never fail a read over it.
func DecodeEnvelope(data []byte) (value []byte, expireAt time.Time, ok bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, time.Time{}, false
	}
	if env.Data == nil || env.ExpireAt.IsZero() {
		return nil, time.Time{}, false
	}
	return env.Data, env.ExpireAt, true
}
