package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionTimeLayout = "20060102_150405.000000"

// Session binds one image's upstream computation to a reusable identifier.
type Session struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// UpstreamArtifacts are the image-only stage outputs reused across scoring runs.
type UpstreamArtifacts struct {
	Retrieval RetrievalResult  `json:"retrieval"`
	Senses    []SenseCandidate `json:"senses"`
	Pages     []EnrichmentPage `json:"pages"`
}

type CacheEntry struct {
	Session   Session
	Artifacts UpstreamArtifacts
}

// NewSessionID derives an id from the submission time plus a random suffix.
func NewSessionID(now time.Time) string {
	stamp := strings.Replace(now.UTC().Format(sessionTimeLayout), ".", "_", 1)
	return stamp + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func Fingerprint(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}
