package render

import (
	"sort"

	"github.com/nanoslide/nanoslide/internal/domain"
)

// sortReport orders the unit lists so reports are deterministic regardless
// of worker completion order.
func sortReport(r *domain.StageReport) {
	sort.Ints(r.Reused)
	sort.Ints(r.Produced)
	sort.Ints(r.Failed)
	sort.Ints(r.Missing)
}
