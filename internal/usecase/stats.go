package usecase

import (
	"sort"

	"github.com/totoufu/archi-input/internal/domain"
)

const statsTopN = 10

// CountItem is one bucket of an aggregate distribution.
type CountItem struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DecadeItem counts works completed within one decade.
type DecadeItem struct {
	Decade int `json:"decade"`
	Count  int `json:"count"`
}

// CollectionStats aggregates the whole collection for the report view.
type CollectionStats struct {
	Total      int          `json:"total"`
	Analyzed   int          `json:"analyzed"`
	Countries  []CountItem  `json:"countries"`
	Usages     []CountItem  `json:"usages"`
	Structures []CountItem  `json:"structures"`
	Decades    []DecadeItem `json:"decades"`
}

// Stats computes summary counters over the full record set: totals plus
// top-10 country/usage/structure distributions and works per decade.
func Stats(works []domain.Work) CollectionStats {
	stats := CollectionStats{Total: len(works)}

	countries := map[string]int{}
	usages := map[string]int{}
	structures := map[string]int{}
	decades := map[int]int{}

	for _, w := range works {
		if w.IsAnalyzed {
			stats.Analyzed++
		}
		if w.Country != "" {
			countries[w.Country]++
		}
		if w.Usage != "" {
			usages[w.Usage]++
		}
		if w.Structure != "" {
			structures[w.Structure]++
		}
		if w.Year != nil {
			decades[(*w.Year/10)*10]++
		}
	}

	stats.Countries = topCounts(countries, statsTopN)
	stats.Usages = topCounts(usages, statsTopN)
	stats.Structures = topCounts(structures, statsTopN)
	stats.Decades = sortedDecades(decades)

	return stats
}

func topCounts(counts map[string]int, n int) []CountItem {
	items := make([]CountItem, 0, len(counts))
	for name, count := range counts {
		items = append(items, CountItem{Name: name, Count: count})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Name < items[j].Name
	})

	if len(items) > n {
		items = items[:n]
	}
	return items
}

func sortedDecades(counts map[int]int) []DecadeItem {
	items := make([]DecadeItem, 0, len(counts))
	for decade, count := range counts {
		items = append(items, DecadeItem{Decade: decade, Count: count})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Decade < items[j].Decade })
	return items
}
