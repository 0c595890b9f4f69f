package analyzer

import (
	"fmt"
	"strings"

	"github.com/ovnwatch/ovnwatch/internal/types"
)

// Recommendations derives the advisory list for one analysis. The list
// is driven purely by the summary fields, follows catalog order, and is
// never empty: a clean analysis yields a single all-clear advisory.
func Recommendations(snat SNATSummary, lrp LRPSummary, corr types.Correlation, val types.ValidationResult) []string {
	var recs []string

	if snat.Total == 0 {
		recs = append(recs, advise(checkSNATPresent,
			"no SNAT rules found - check if EgressIP objects are properly configured"))
	} else if snat.Parsed < snat.Total {
		recs = append(recs, advise(checkSNATParseClean,
			"some SNAT rules failed to parse - review OVN rule format"))
	}

	if lrp.Total == 0 {
		recs = append(recs, advise(checkLRPPresent,
			"no LRP rules found - this may indicate OVN configuration issues"))
	} else if lrp.Parsed < lrp.Total {
		recs = append(recs, advise(checkLRPParseClean,
			"some LRP rules failed to parse - review OVN rule format"))
	}

	if corr.Computed && corr.Rating == types.CorrelationPoor {
		recs = append(recs, advise(checkCorrelation,
			"poor correlation between SNAT and LRP rules - investigate OVN rule synchronization"))
	}

	if val.Possible {
		if n := len(val.MissingSNAT); n > 0 {
			recs = append(recs, advise(checkAssignedCovered,
				fmt.Sprintf("missing SNAT rules for %d EgressIPs - check OVN rule creation", n)))
		}
		if n := len(val.UnexpectedSNAT); n > 0 {
			recs = append(recs, advise(checkNoStaleSNAT,
				fmt.Sprintf("found %d unexpected SNAT rules - check for stale rules", n)))
		}
	}

	if len(recs) == 0 {
		recs = append(recs, "OVN rules analysis shows no major issues - monitoring and periodic validation recommended")
	}
	return recs
}

// advise appends the owning component to an advisory so operators know
// where to look first.
func advise(checkID, message string) string {
	check, ok := checkByID(checkID)
	if !ok {
		return message
	}
	owner, ok := componentOwners[check.Component]
	if !ok {
		return message
	}
	return fmt.Sprintf("%s (owner: %s, %s)", message, owner.Name, owner.Description)
}

// Explain renders one analysis as a plain-text cause/owner breakdown for
// log output and issue reports.
func Explain(analysis *NodeAnalysis) string {
	var out strings.Builder

	fmt.Fprintf(&out, "node %s: %d snat, %d lrp rules\n", analysis.Node, analysis.SNATCount, analysis.LRPCount)
	if analysis.Correlation.Computed {
		fmt.Fprintf(&out, "correlation: %.2f (%s)\n", analysis.Correlation.Score, analysis.Correlation.Rating)
	} else {
		out.WriteString("correlation: no data\n")
	}
	if analysis.Validation.Possible {
		fmt.Fprintf(&out, "validation: %d missing, %d unexpected\n",
			len(analysis.Validation.MissingSNAT), len(analysis.Validation.UnexpectedSNAT))
	} else {
		fmt.Fprintf(&out, "validation: not possible (%s)\n", analysis.Validation.Reason)
	}
	for _, rec := range analysis.Recommendations {
		fmt.Fprintf(&out, "  - %s\n", rec)
	}
	return out.String()
}
