package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MaxIdempotencyKeyLength bounds caller-supplied keys
const MaxIdempotencyKeyLength = 64

// IdempotencyRecord caches the result of a completed write so retries with
// the same key return the original outcome. Unique on
// (fundID, endpoint, idempotencyKey).
type IdempotencyRecord struct {
	ID             uuid.UUID `json:"id"`
	FundID         uuid.UUID `json:"fundId"`
	Endpoint       string    `json:"endpoint"`
	IdempotencyKey string    `json:"idempotencyKey"`
	RequestHash    string    `json:"requestHash"`
	ResultRef      uuid.UUID `json:"resultRef"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ValidIdempotencyKey checks the caller-supplied key format
func ValidIdempotencyKey(key string) bool {
	return key != "" && len(key) <= MaxIdempotencyKeyLength
}

// HashRequest produces the request hash compared on idempotent retries. A
// retry with the same key but a different hash is a Conflict.
func HashRequest(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payloads are plain structs; marshal cannot fail for them
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CheckReplay compares a stored record against a retry. Returns true when the
// retry matches and the cached result should be returned.
func (r *IdempotencyRecord) CheckReplay(requestHash string) (bool, error) {
	if r == nil {
		return false, nil
	}
	if r.RequestHash != requestHash {
		return false, ErrIdempotencyMismatch
	}
	return true, nil
}

// IdempotencyRepository reads idempotency records. Writes happen inside the
// atomic payment methods of the owning repositories.
type IdempotencyRepository interface {
	// Get returns (nil, nil) when no record exists for the key
	Get(ctx context.Context, fundID uuid.UUID, endpoint, key string) (*IdempotencyRecord, error)
}
