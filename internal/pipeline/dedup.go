package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

// ClaimResult is the outcome of Deduplicator.Claim.
type ClaimResult int

const (
	ClaimAccepted ClaimResult = iota
	ClaimDuplicate
)

func (r ClaimResult) String() string {
	if r == ClaimDuplicate {
		return "duplicate"
	}
	return "accepted"
}

const dedupShards = 32

type dedupShard struct {
	mu   sync.Mutex
	seen map[string]time.Time // key -> first_seen_at
}

// Deduplicator suppresses identical drops seen within a TTL window.
type Deduplicator struct {
	ttl    time.Duration
	now    func() time.Time
	shards [dedupShards]dedupShard
}

func NewDeduplicator(ttl time.Duration, now func() time.Time) *Deduplicator {
	if now == nil {
		now = time.Now
	}
	d := &Deduplicator{ttl: ttl, now: now}
	for i := range d.shards {
		d.shards[i].seen = make(map[string]time.Time)
	}
	return d
}

// DedupeKey hashes kind, normalized match, market and the sorted book:odds pairs.
func DedupeKey(d *models.Drop) string {
	legs := make([]string, len(d.Outcomes))
	for i, o := range d.Outcomes {
		legs[i] = normalizeText(o.Book) + ":" + strconv.Itoa(o.AmericanOdds)
	}
	sort.Strings(legs)

	h := sha256.New()
	for _, part := range []string{string(d.Kind), normalizeText(d.Match), normalizeText(d.Market), strings.Join(legs, ",")} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (d *Deduplicator) shard(key string) *dedupShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &d.shards[h.Sum32()%dedupShards]
}

// Claim accepts the drop if its key is absent or expired and records it.
func (d *Deduplicator) Claim(drop *models.Drop) (ClaimResult, string) {
	key := DedupeKey(drop)
	s := d.shard(key)
	now := d.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if first, ok := s.seen[key]; ok && now.Sub(first) < d.ttl {
		return ClaimDuplicate, key
	}
	s.seen[key] = now
	return ClaimAccepted, key
}

// Release forgets a key so the next identical drop is accepted.
func (d *Deduplicator) Release(key string) {
	s := d.shard(key)
	s.mu.Lock()
	delete(s.seen, key)
	s.mu.Unlock()
}

// Sweep evicts expired entries and returns how many were removed.
func (d *Deduplicator) Sweep() int {
	now := d.now()
	removed := 0
	for i := range d.shards {
		s := &d.shards[i]
		s.mu.Lock()
		for k, first := range s.seen {
			if now.Sub(first) >= d.ttl {
				delete(s.seen, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys, expired or not.
func (d *Deduplicator) Len() int {
	n := 0
	for i := range d.shards {
		s := &d.shards[i]
		s.mu.Lock()
		n += len(s.seen)
		s.mu.Unlock()
	}
	return n
}

// RunSweeper sweeps every interval until ctx is done.
func (d *Deduplicator) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep()
		}
	}
}
