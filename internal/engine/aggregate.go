package engine

import "github.com/leapstack-labs/veritab/pkg/dataset"

// Verdict is the per-row classification.
type Verdict string

// Row verdicts: generally conforms, partially conforms, does not
// conform.
const (
	GC  Verdict = "GC"
	PC  Verdict = "PC"
	DNC Verdict = "DNC"
)

// Aggregate combines per-rule Boolean columns into a per-row verdict:
// all rules true is GC, all false is DNC, and a mix — or any rule
// missing at that row — is PC.
func Aggregate(columns [][]dataset.Value, rows int) []Verdict {
	verdicts := make([]Verdict, rows)
	for i := range verdicts {
		trues, falses, missings := 0, 0, 0
		for _, col := range columns {
			v := col[i]
			switch {
			case v.IsMissing():
				missings++
			case v.Kind == dataset.KindBool && v.B:
				trues++
			default:
				falses++
			}
		}
		switch {
		case missings > 0:
			verdicts[i] = PC
		case falses == 0:
			verdicts[i] = GC
		case trues == 0:
			verdicts[i] = DNC
		default:
			verdicts[i] = PC
		}
	}
	return verdicts
}
