package dict

import (
	"fmt"
	"strings"
)

const statsVectLen = 50

// Stats returns a human readable summary of both tables, including a
// histogram of chain lengths.
func (d *Dict[K, V]) Stats() string {
	var b strings.Builder
	d.ht[0].writeStats(&b, 0)
	if d.mig != nil {
		d.ht[1].writeStats(&b, 1)
	}
	return b.String()
}

func (t *table[K, V]) writeStats(b *strings.Builder, id int) {
	if t.used == 0 {
		fmt.Fprintf(b, "No stats available for empty dictionaries\n")
		return
	}

	var clvector [statsVectLen]uint64
	slots, maxChain, totChain := uint64(0), uint64(0), uint64(0)
	for i := uint64(0); i < t.size; i++ {
		e := t.buckets[i]
		if e == nil {
			clvector[0]++
			continue
		}
		slots++
		var chain uint64
		for ; e != nil; e = e.next {
			chain++
		}
		if chain < statsVectLen {
			clvector[chain]++
		} else {
			clvector[statsVectLen-1]++
		}
		if chain > maxChain {
			maxChain = chain
		}
		totChain += chain
	}

	label := "main hash table"
	if id == 1 {
		label = "rehashing target"
	}
	fmt.Fprintf(b, "Hash table %d stats (%s):\n", id, label)
	fmt.Fprintf(b, " table size: %d\n", t.size)
	fmt.Fprintf(b, " number of elements: %d\n", t.used)
	fmt.Fprintf(b, " different slots: %d\n", slots)
	fmt.Fprintf(b, " max chain length: %d\n", maxChain)
	fmt.Fprintf(b, " avg chain length (counted): %.02f\n", float64(totChain)/float64(slots))
	fmt.Fprintf(b, " avg chain length (computed): %.02f\n", float64(t.used)/float64(slots))
	fmt.Fprintf(b, " Chain length distribution:\n")
	for i := 0; i < statsVectLen-1; i++ {
		if clvector[i] == 0 {
			continue
		}
		fmt.Fprintf(b, "   %d: %d (%.02f%%)\n", i, clvector[i], float64(clvector[i])/float64(t.size)*100)
	}
}
