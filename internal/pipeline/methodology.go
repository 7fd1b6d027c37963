package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
)

// writeMethodology renders a human-readable account of how the grouping
// was derived, for the approval step.
func (p *Pipeline) writeMethodology(groups []internal.FileGroup, ungrouped, empty []string) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Template Grouping Methodology\n\n")
	fmt.Fprintf(&b, "Generated %s.\n\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Files are compared by structural fingerprint only: sheet names, header-row\n")
	fmt.Fprintf(&b, "labels, and first-column labels. Cell contents play no part.\n\n")
	fmt.Fprintf(&b, "Signals, in order:\n\n")
	fmt.Fprintf(&b, "1. Exact sheet-name key match (sorted tab names).\n")
	fmt.Fprintf(&b, "2. Label overlap (Jaccard similarity over per-sheet header and first-column\n")
	fmt.Fprintf(&b, "   labels, case and whitespace normalized) against a family's first member.\n\n")
	fmt.Fprintf(&b, "Thresholds: identity %.2f, variant %.2f. A file joins a family at or above\n", p.cfg.IdentityThreshold, p.cfg.VariantThreshold)
	fmt.Fprintf(&b, "the variant threshold and is flagged a sub-variant below the identity\n")
	fmt.Fprintf(&b, "threshold. Families whose minimum pairwise overlap drops below the variant\n")
	fmt.Fprintf(&b, "threshold are split.\n\n")

	fmt.Fprintf(&b, "## Families (%d)\n\n", len(groups))
	for _, g := range groups {
		fmt.Fprintf(&b, "### %s\n\n", g.Name)
		fmt.Fprintf(&b, "- members: %d, minimum pairwise overlap: %.3f\n", len(g.Members), g.MinOverlap)
		if g.Era != "" {
			fmt.Fprintf(&b, "- era: %s\n", g.Era)
		}
		if len(g.SubVariants) > 0 {
			fmt.Fprintf(&b, "- sub-variants: %s\n", strings.Join(baseNames(g.SubVariants), ", "))
		}
		if g.Variance != nil {
			fmt.Fprintf(&b, "- variance: %d uncommon sheets, %d sheets with uncommon labels\n",
				len(g.Variance.UncommonSheets), len(g.Variance.UncommonLabels))
		}
		for _, member := range g.Members {
			fmt.Fprintf(&b, "  - %s\n", filepath.Base(member))
		}
		fmt.Fprintf(&b, "\n")
	}

	if len(ungrouped) > 0 {
		fmt.Fprintf(&b, "## Ungrouped (%d)\n\n", len(ungrouped))
		for _, path := range ungrouped {
			fmt.Fprintf(&b, "- %s\n", filepath.Base(path))
		}
		fmt.Fprintf(&b, "\n")
	}
	if len(empty) > 0 {
		fmt.Fprintf(&b, "## Empty templates (%d)\n\n", len(empty))
		for _, path := range empty {
			fmt.Fprintf(&b, "- %s\n", filepath.Base(path))
		}
	}

	return os.WriteFile(filepath.Join(p.dataDir, methodFile), []byte(b.String()), 0o644)
}

func baseNames(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		out = append(out, filepath.Base(path))
	}
	return out
}
