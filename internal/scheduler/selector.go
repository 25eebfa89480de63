package scheduler

import (
	"sort"

	"pixvid/internal/domain"
)

// Order returns the pending jobs in dispatch order for the given batch
// policy. It is a pure function: the input slice is never mutated and the
// result is deterministic for a given input set.
//
//   - sequential: ascending creation time, job ID as tiebreak
//   - priority:   descending priority score, sequential order as tiebreak
//   - parallel:   input order preserved
func Order(jobs []*domain.Job, policy domain.BatchPolicy) []*domain.Job {
	out := append([]*domain.Job(nil), jobs...)
	switch policy {
	case domain.BatchSequential:
		sort.SliceStable(out, func(i, j int) bool { return olderFirst(out[i], out[j]) })
	case domain.BatchPriority:
		sort.SliceStable(out, func(i, j int) bool {
			si, sj := PriorityScore(out[i]), PriorityScore(out[j])
			if si != sj {
				return si > sj
			}
			return olderFirst(out[i], out[j])
		})
	}
	return out
}

func olderFirst(a, b *domain.Job) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// PriorityScore ranks a job for the priority policy: reference images add 2,
// quality adds 3/2/1 for 4k/fhd/hd.
func PriorityScore(j *domain.Job) int {
	score := j.Settings.Quality.Rank()
	if j.HasReferences() {
		score += 2
	}
	return score
}
