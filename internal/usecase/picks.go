package usecase

import (
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/totoufu/archi-input/internal/domain"
)

const mainPickCount = 3

// TodayPicks deterministically selects up to 3 main picks and up to 1
// bonus pick for the given calendar date. It is a pure function of
// (works, day): the generator seeded from YYYYMMDD is the sole source of
// randomness, so every call on the same date yields the same picks.
func TodayPicks(works []domain.Work, day time.Time) domain.Picks {
	seed, _ := strconv.ParseInt(day.Format("20060102"), 10, 64)
	rng := rand.New(rand.NewSource(seed))

	var unreviewed, reviewed []domain.Work
	for _, w := range works {
		if w.IsReviewed {
			reviewed = append(reviewed, w)
		} else {
			unreviewed = append(unreviewed, w)
		}
	}

	// Ordering feeds the sampling algorithm's determinism only; output
	// order carries no meaning.
	sortByCreatedDesc(unreviewed)
	sortByCreatedDesc(reviewed)

	var picks domain.Picks
	picks.Main = sampleWithoutReplacement(rng, unreviewed, mainPickCount)

	leftover := excluding(unreviewed, picks.Main)
	switch {
	case len(reviewed) > 0:
		bonus := reviewed[rng.Intn(len(reviewed))]
		picks.Bonus = &bonus
	case len(leftover) > 0:
		bonus := leftover[rng.Intn(len(leftover))]
		picks.Bonus = &bonus
	}

	return picks
}

func sortByCreatedDesc(works []domain.Work) {
	sort.SliceStable(works, func(i, j int) bool {
		if !works[i].CreatedAt.Equal(works[j].CreatedAt) {
			return works[i].CreatedAt.After(works[j].CreatedAt)
		}
		return works[i].ID > works[j].ID
	})
}

func sampleWithoutReplacement(rng *rand.Rand, pool []domain.Work, n int) []domain.Work {
	if len(pool) <= n {
		out := make([]domain.Work, len(pool))
		copy(out, pool)
		return out
	}

	out := make([]domain.Work, 0, n)
	for _, idx := range rng.Perm(len(pool))[:n] {
		out = append(out, pool[idx])
	}
	return out
}

func excluding(pool, chosen []domain.Work) []domain.Work {
	if len(chosen) == 0 {
		return pool
	}

	taken := make(map[string]struct{}, len(chosen))
	for _, w := range chosen {
		taken[w.ID] = struct{}{}
	}

	var rest []domain.Work
	for _, w := range pool {
		if _, ok := taken[w.ID]; !ok {
			rest = append(rest, w)
		}
	}
	return rest
}
