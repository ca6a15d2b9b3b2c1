package scoring

import (
	"cmp"
	"slices"

	"github.com/yourusername/exam-api/internal/domain/entity"
)

// CenterLookup returns the center of a student and whether it is known.
type CenterLookup func(studentID string) (string, bool)

// Rank recomputes overall and center-wise ranks for every result of one test.
//
// Order: higher total first, then fewer incorrect answers, then lower time
// taken, then student ID. Ranking is dense: results with equal
// (total, incorrect, time taken) share a rank and the next key gets rank+1,
// so ranks run 1, 2, 2, 3. Center-wise ranks apply the same rule inside each
// center; students with an unknown center get CenterWise 0.
//
// results are updated in place. The returned updates follow the overall order.
func Rank(results []entity.Result, centerOf CenterLookup) []entity.RankUpdate {
	if len(results) == 0 {
		return nil
	}

	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	byStanding := func(a, b int) int {
		return compareStanding(&results[a], &results[b])
	}

	slices.SortFunc(order, byStanding)
	assignDense(results, order, func(r *entity.Result, rank int) { r.Rank.Overall = rank })

	partitions := make(map[string][]int)
	var centers []string
	for _, i := range order {
		results[i].Rank.CenterWise = 0
		if centerOf == nil {
			continue
		}
		center, ok := centerOf(results[i].StudentID)
		if !ok || center == "" {
			continue
		}
		if _, seen := partitions[center]; !seen {
			centers = append(centers, center)
		}
		partitions[center] = append(partitions[center], i)
	}
	for _, c := range centers {
		// partitions inherit the overall order
		assignDense(results, partitions[c], func(r *entity.Result, rank int) { r.Rank.CenterWise = rank })
	}

	updates := make([]entity.RankUpdate, 0, len(results))
	for _, i := range order {
		updates = append(updates, entity.RankUpdate{StudentID: results[i].StudentID, Rank: results[i].Rank})
	}
	return updates
}

func compareStanding(a, b *entity.Result) int {
	if c := cmp.Compare(b.Score.Total, a.Score.Total); c != 0 {
		return c
	}
	if c := sameKey(a, b); c != 0 {
		return c
	}
	return cmp.Compare(a.StudentID, b.StudentID)
}

// sameKey compares the tie-break part of the rank key.
func sameKey(a, b *entity.Result) int {
	if c := cmp.Compare(a.Score.Incorrect, b.Score.Incorrect); c != 0 {
		return c
	}
	return cmp.Compare(a.TimeTaken, b.TimeTaken)
}

func equalKey(a, b *entity.Result) bool {
	return a.Score.Total == b.Score.Total && sameKey(a, b) == 0
}

func assignDense(results []entity.Result, sorted []int, set func(*entity.Result, int)) {
	rank := 0
	for n, i := range sorted {
		if n == 0 || !equalKey(&results[sorted[n-1]], &results[i]) {
			rank++
		}
		set(&results[i], rank)
	}
}
