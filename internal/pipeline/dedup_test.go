package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

// fakeClock is a settable clock shared by tests in this package.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func dedupDrop() *models.Drop {
	return &models.Drop{
		Kind:   models.KindArbitrage,
		Match:  "Lakers vs Celtics",
		Market: "Moneyline",
		Outcomes: []models.Outcome{
			{AmericanOdds: -200, Book: "Betsson"},
			{AmericanOdds: 255, Book: "Coolbet"},
		},
	}
}

func TestDedupeKey_Normalized(t *testing.T) {
	a := dedupDrop()
	b := dedupDrop()
	b.Match = "  lakers   VS celtics "
	b.Market = "moneyline"
	b.Outcomes[0], b.Outcomes[1] = b.Outcomes[1], b.Outcomes[0]
	b.EventID = "different-event"
	if DedupeKey(a) != DedupeKey(b) {
		t.Error("key should ignore case, whitespace, outcome order and event id")
	}

	c := dedupDrop()
	c.Outcomes[1].AmericanOdds = 260
	if DedupeKey(a) == DedupeKey(c) {
		t.Error("different odds should change the key")
	}
	m := dedupDrop()
	m.Kind = models.KindMiddle
	if DedupeKey(a) == DedupeKey(m) {
		t.Error("different kind should change the key")
	}
}

func TestDeduplicator_ClaimWindow(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	d := NewDeduplicator(10*time.Minute, clock.Now)

	if res, _ := d.Claim(dedupDrop()); res != ClaimAccepted {
		t.Fatal("first claim should be accepted")
	}
	clock.Advance(9 * time.Minute)
	if res, _ := d.Claim(dedupDrop()); res != ClaimDuplicate {
		t.Fatal("claim inside window should be duplicate")
	}
	clock.Advance(2 * time.Minute)
	if res, _ := d.Claim(dedupDrop()); res != ClaimAccepted {
		t.Fatal("claim after ttl should be accepted")
	}
}

func TestDeduplicator_ReleaseAndSweep(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	d := NewDeduplicator(10*time.Minute, clock.Now)

	_, key := d.Claim(dedupDrop())
	d.Release(key)
	if res, _ := d.Claim(dedupDrop()); res != ClaimAccepted {
		t.Fatal("released key should be claimable")
	}

	other := dedupDrop()
	other.Match = "Suns vs Heat"
	d.Claim(other)
	if d.Len() != 2 {
		t.Fatalf("len = %d", d.Len())
	}
	clock.Advance(10 * time.Minute)
	if n := d.Sweep(); n != 2 {
		t.Errorf("swept %d, want 2", n)
	}
	if d.Len() != 0 {
		t.Errorf("len after sweep = %d", d.Len())
	}
}

func TestDeduplicator_ConcurrentClaims(t *testing.T) {
	d := NewDeduplicator(time.Minute, nil)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, _ := d.Claim(dedupDrop()); res == ClaimAccepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if accepted != 1 {
		t.Errorf("accepted = %d, want exactly 1", accepted)
	}
}
