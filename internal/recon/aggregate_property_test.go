package recon

import (
	"fmt"
	"log/slog"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/freebsd-sec/pysec2vuxml/internal/ports"
)

type addition struct {
	pkg  ports.PackageRecord
	vuln Vulnerability
}

// buildAdditions derives a deterministic set of matched pairs from the
// generated shape: vulnCount vulnerabilities spread over flavorCount
// flavors with slightly disagreeing upper bounds
func buildAdditions(vulnCount, flavorCount int) []addition {
	var additions []addition
	for v := 0; v < vulnCount; v++ {
		vuln := Vulnerability{
			ID:      fmt.Sprintf("PYSEC-2023-%03d", v),
			Aliases: []string{fmt.Sprintf("CVE-2023-%05d", v)},
		}
		for f := 0; f < flavorCount; f++ {
			flavor := ports.Flavor{Major: 3, Minor: 8 + f}
			vuln.Specs = []VersionSpec{{
				Kind:    BoundLessThan,
				Version: fmt.Sprintf("1.%d.%d", v, f%2),
			}}
			additions = append(additions, addition{
				pkg: ports.PackageRecord{
					CanonicalName: fmt.Sprintf("pkg%d", v%3),
					Flavor:        flavor,
					Version:       "0.1.0",
					PortName:      flavor.Prefix() + fmt.Sprintf("pkg%d", v%3),
				},
				vuln: vuln,
			})
		}
	}
	return additions
}

func aggregateIn(additions []addition, order []int) []*CandidateEntry {
	agg := NewAggregator(slog.New(slog.DiscardHandler))
	for _, i := range order {
		agg.Add(additions[i].pkg, additions[i].vuln)
	}
	return agg.Candidates()
}

// permutation derives a deterministic permutation of n elements from a seed
func permutation(n int, seed int64) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	state := uint64(seed)
	for i := n - 1; i > 0; i-- {
		state = state*6364136223846793005 + 1442695040888963407
		j := int(state % uint64(i+1))
		order[i], order[j] = order[j], order[i]
	}
	return order
}

func TestAggregationOrderInsensitiveProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Any arrival order yields identical candidates", prop.ForAll(
		func(vulnCount int, flavorCount int, seed int64) bool {
			additions := buildAdditions(vulnCount, flavorCount)

			sequential := make([]int, len(additions))
			for i := range sequential {
				sequential[i] = i
			}

			base := aggregateIn(additions, sequential)
			permuted := aggregateIn(additions, permutation(len(additions), seed))

			if !reflect.DeepEqual(base, permuted) {
				t.Logf("candidates differ: %+v vs %+v", base, permuted)
				return false
			}
			return true
		},
		gen.IntRange(1, 6),
		gen.IntRange(1, 5),
		gen.Int64(),
	))

	properties.Property("Repeated additions leave candidates unchanged", prop.ForAll(
		func(vulnCount int, flavorCount int) bool {
			additions := buildAdditions(vulnCount, flavorCount)

			once := make([]int, len(additions))
			for i := range once {
				once[i] = i
			}
			twice := append(append([]int(nil), once...), once...)

			return reflect.DeepEqual(aggregateIn(additions, once), aggregateIn(additions, twice))
		},
		gen.IntRange(1, 6),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
