package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is one audited change. Entries of a station form a hash chain:
// ChainDigest covers the entry and the previous entry's ChainDigest.
type Entry struct {
	ID            string          `json:"id"`
	Seq           int64           `json:"seq"`
	TenantID      string          `json:"tenant_id"`
	Actor         string          `json:"actor"`
	Role          string          `json:"role"`
	Action        string          `json:"action"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    string          `json:"resource_id"`
	StationID     string          `json:"station_id"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	PayloadDigest string          `json:"payload_digest"`
	PrevDigest    string          `json:"prev_digest"`
	ChainDigest   string          `json:"chain_digest"`
	IP            string          `json:"ip,omitempty"`
	UserAgent     string          `json:"user_agent,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// Filter narrows audit queries. Empty fields match everything.
type Filter struct {
	TenantID     string
	StationID    string
	ResourceType string
	ResourceID   string
	Limit        int
}

func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON returns the hex SHA-256 of a metadata payload.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LinkDigest computes the chain digest of e on top of prev. CreatedAt is
// hashed at microsecond precision, the resolution Postgres stores.
func LinkDigest(prev string, e Entry) string {
	parts := []string{
		prev,
		e.ID,
		e.TenantID,
		e.StationID,
		e.Action,
		e.ResourceID,
		e.Actor,
		e.PayloadDigest,
		e.CreatedAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Verification is the result of walking a station's chain.
type Verification struct {
	StationID string `json:"station_id"`
	Entries   int    `json:"entries"`
	Intact    bool   `json:"intact"`
	BrokenAt  string `json:"broken_at,omitempty"`
}

// VerifyChain checks entries in chain order and reports the first entry whose
// link or digest does not match.
func VerifyChain(stationID string, entries []Entry) Verification {
	result := Verification{StationID: stationID, Entries: len(entries), Intact: true}
	prev := ""
	for _, e := range entries {
		if e.PrevDigest != prev || e.ChainDigest != LinkDigest(prev, e) || e.PayloadDigest != DigestJSON(e.Metadata) {
			result.Intact = false
			result.BrokenAt = e.ID
			return result
		}
		prev = e.ChainDigest
	}
	return result
}
