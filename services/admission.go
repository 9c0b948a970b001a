package services

import (
	"sync"
	"time"

	"github.com/agext/levenshtein"
)

// Admission filter tuning. A message is dropped when it lands inside the
// spam window AND reads nearly identical to the user's previous message.
const (
	SpamWindow          = 2500 * time.Millisecond
	SpamSimilarity      = 0.85
	admissionCacheTTL   = 10 * time.Minute
	admissionCacheLimit = 50000
)

type lastMessage struct {
	content string
	at      time.Time
}

// AdmissionFilter is the anti-spam gate in front of the ingestion
// pipeline. It keeps a bounded per-process cache of each user's previous
// message keyed by (guild, user) — a heuristic, not a hard guarantee.
type AdmissionFilter struct {
	mu      sync.Mutex
	entries map[string]*lastMessage
	limit   int
	ttl     time.Duration
}

func NewAdmissionFilter() *AdmissionFilter {
	return &AdmissionFilter{
		entries: make(map[string]*lastMessage),
		limit:   admissionCacheLimit,
		ttl:     admissionCacheTTL,
	}
}

// Check decides whether a message may enter the pipeline. Either way the
// message becomes the new last-seen entry, so back-to-back spam is always
// compared against the latest attempt.
func (f *AdmissionFilter) Check(guildID, userID, content string, at time.Time) bool {
	key := guildID + ":" + userID

	f.mu.Lock()
	defer f.mu.Unlock()

	// Snapshot the previous entry before store overwrites it in place.
	var prevContent string
	var prevAt time.Time
	prev, seen := f.entries[key]
	if seen {
		prevContent, prevAt = prev.content, prev.at
	}
	f.store(key, content, at)

	if !seen || at.Sub(prevAt) >= SpamWindow {
		return true
	}
	return levenshtein.Similarity(prevContent, content, nil) <= SpamSimilarity
}

// store records the last-seen message, evicting stale entries when the
// cache is over its cap.
func (f *AdmissionFilter) store(key, content string, at time.Time) {
	if len(f.entries) >= f.limit {
		f.evictExpired(at)
	}
	if e, ok := f.entries[key]; ok {
		e.content = content
		e.at = at
		return
	}
	f.entries[key] = &lastMessage{content: content, at: at}
}

func (f *AdmissionFilter) evictExpired(now time.Time) {
	for key, e := range f.entries {
		if now.Sub(e.at) > f.ttl {
			delete(f.entries, key)
		}
	}
	// Still full after the sweep: drop arbitrary entries — losing a
	// last-seen record only weakens the heuristic for that one user.
	for key := range f.entries {
		if len(f.entries) < f.limit {
			break
		}
		delete(f.entries, key)
	}
}

// Len reports the current cache size (exposed for tests).
func (f *AdmissionFilter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
