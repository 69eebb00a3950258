package rank

import (
	"time"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/model"
)

// demoObservation synthesizes a deterministic observation for demo mode
// and live-call failures. The same keyword/URL pair always yields the
// same position, and roughly one in seven pairs yields "not found", so
// demo behavior stays reproducible across runs.
func demoObservation(keyword, targetURL string) *model.RankObservation {
	h := stableHash(keyword + targetURL)

	obs := &model.RankObservation{
		Mode:      "demo",
		FetchedAt: time.Now(),
	}
	if h%7 == 0 {
		return obs
	}

	pos := int(h%50) + 1
	obs.Position = &pos
	obs.URLFound = targetURL
	return obs
}

// stableHash is a 32-bit shift-and-subtract string hash
// (hash = hash*31 + char, computed as (hash<<5)-hash+char),
// folded to a non-negative value. The fold masks the sign bit rather
// than negating: -MinInt32 overflows back to MinInt32 and would leak a
// negative position.
func stableHash(s string) int32 {
	var h int32
	for _, r := range s {
		h = (h << 5) - h + int32(r)
	}
	return h & 0x7fffffff
}
