package scheduler

import (
	"testing"
	"time"

	"pixvid/internal/domain"
)

func makeJob(id string, createdAt time.Time, quality domain.Quality, refs int) *domain.Job {
	keys := make([]string, refs)
	for i := range keys {
		keys[i] = "ref"
	}
	return &domain.Job{
		ID:            id,
		CreatedAt:     createdAt,
		ReferenceKeys: keys,
		Settings:      domain.JobSettings{Quality: quality},
	}
}

func ids(jobs []*domain.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOrderSequentialFIFO(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := []*domain.Job{
		makeJob("c", base.Add(2*time.Second), domain.QualityHD, 0),
		makeJob("a", base, domain.QualityHD, 0),
		makeJob("b", base.Add(time.Second), domain.QualityHD, 0),
	}
	got := ids(Order(jobs, domain.BatchSequential))
	if !equalIDs(got, []string{"a", "b", "c"}) {
		t.Fatalf("Order(sequential) = %v, want [a b c]", got)
	}
}

func TestOrderSequentialTiebreakByID(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := []*domain.Job{
		makeJob("z", base, domain.QualityHD, 0),
		makeJob("a", base, domain.QualityHD, 0),
	}
	got := ids(Order(jobs, domain.BatchSequential))
	if !equalIDs(got, []string{"a", "z"}) {
		t.Fatalf("Order(sequential tie) = %v, want [a z]", got)
	}
}

func TestOrderPriorityScoring(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// 4k with references scores 5, hd without scores 1; submission order must
	// not matter.
	low := makeJob("low", base, domain.QualityHD, 0)
	high := makeJob("high", base.Add(time.Minute), domain.Quality4K, 2)
	got := ids(Order([]*domain.Job{low, high}, domain.BatchPriority))
	if !equalIDs(got, []string{"high", "low"}) {
		t.Fatalf("Order(priority) = %v, want [high low]", got)
	}
}

func TestOrderPriorityTiebreakFIFO(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := makeJob("first", base, domain.QualityFHD, 0)
	second := makeJob("second", base.Add(time.Second), domain.QualityFHD, 0)
	got := ids(Order([]*domain.Job{second, first}, domain.BatchPriority))
	if !equalIDs(got, []string{"first", "second"}) {
		t.Fatalf("Order(priority tie) = %v, want [first second]", got)
	}
}

func TestOrderParallelPreservesInput(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := []*domain.Job{
		makeJob("b", base.Add(time.Second), domain.Quality4K, 1),
		makeJob("a", base, domain.QualityHD, 0),
	}
	got := ids(Order(jobs, domain.BatchParallel))
	if !equalIDs(got, []string{"b", "a"}) {
		t.Fatalf("Order(parallel) = %v, want input order [b a]", got)
	}
}

func TestOrderDeterministicAndPure(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := []*domain.Job{
		makeJob("a", base.Add(3*time.Second), domain.QualityHD, 0),
		makeJob("b", base, domain.Quality4K, 1),
		makeJob("c", base.Add(time.Second), domain.QualityFHD, 0),
	}
	inputOrder := ids(jobs)
	first := ids(Order(jobs, domain.BatchPriority))
	for i := 0; i < 10; i++ {
		if got := ids(Order(jobs, domain.BatchPriority)); !equalIDs(got, first) {
			t.Fatalf("Order() not deterministic: %v vs %v", got, first)
		}
	}
	if !equalIDs(ids(jobs), inputOrder) {
		t.Fatalf("Order() mutated its input: %v", ids(jobs))
	}
}

func TestPriorityScore(t *testing.T) {
	tests := []struct {
		quality domain.Quality
		refs    int
		want    int
	}{
		{domain.QualityHD, 0, 1},
		{domain.QualityFHD, 0, 2},
		{domain.Quality4K, 0, 3},
		{domain.QualityHD, 1, 3},
		{domain.Quality4K, 3, 5},
	}
	for _, tc := range tests {
		j := makeJob("x", time.Now(), tc.quality, tc.refs)
		if got := PriorityScore(j); got != tc.want {
			t.Fatalf("PriorityScore(%s, %d refs) = %d, want %d", tc.quality, tc.refs, got, tc.want)
		}
	}
}
