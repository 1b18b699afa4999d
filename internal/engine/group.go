package engine

import "github.com/leapstack-labs/veritab/pkg/dataset"

// GroupStat holds per-group verdict counts and the threshold check.
// DNCPercentage uses the union of the non-conforming categories:
// (DNC + PC) / Total x 100.
type GroupStat struct {
	Key           string  `json:"group"`
	GC            int     `json:"gc"`
	PC            int     `json:"pc"`
	DNC           int     `json:"dnc"`
	Total         int     `json:"total"`
	DNCPercentage float64 `json:"dnc_percentage"`
	Exceeds       bool    `json:"exceeds_threshold"`
}

// GroupBy groups verdicts by the value of the named column and judges
// each group against the threshold. Group order is the insertion
// order of first occurrence. Rows whose group value is missing group
// under the empty key.
func GroupBy(ds *dataset.Dataset, column string, verdicts []Verdict, threshold float64) []GroupStat {
	col, ok := ds.Column(column)

	var stats []GroupStat
	index := make(map[string]int)

	for i, verdict := range verdicts {
		key := ""
		if ok {
			key = col.Values[i].AsString()
		}

		gi, seen := index[key]
		if !seen {
			gi = len(stats)
			index[key] = gi
			stats = append(stats, GroupStat{Key: key})
		}

		s := &stats[gi]
		s.Total++
		switch verdict {
		case GC:
			s.GC++
		case PC:
			s.PC++
		default:
			s.DNC++
		}
	}

	for i := range stats {
		s := &stats[i]
		if s.Total > 0 {
			s.DNCPercentage = float64(s.DNC+s.PC) / float64(s.Total) * 100
		}
		s.Exceeds = s.DNCPercentage > threshold
	}

	return stats
}

// Judge returns the overall verdict: the analytic passes only when no
// group exceeds the threshold. An empty dataset passes by convention.
func Judge(groups []GroupStat) bool {
	for _, g := range groups {
		if g.Exceeds {
			return false
		}
	}
	return true
}
