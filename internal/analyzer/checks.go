package analyzer

// Severity ranks how bad a failed check is for egress traffic.
type Severity string

const (
	Critical Severity = "critical"
	Degraded Severity = "degraded"
	Warning  Severity = "warning"
)

// Check is one diagnostic condition the analyzer evaluates over a node's
// rule state. The catalog is static; evaluation order follows catalog
// order so advisory lists are deterministic.
type Check struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Component   string   `json:"component"` // owning ovn-kubernetes component
}

// ComponentMetadata describes the control-plane component that owns a
// failed check, so advisories can point at the right place to look.
type ComponentMetadata struct {
	Name        string
	Description string
}

const (
	checkSNATPresent     = "snat_rules_present"
	checkLRPPresent      = "lrp_rules_present"
	checkSNATParseClean  = "snat_rules_parse_clean"
	checkLRPParseClean   = "lrp_rules_parse_clean"
	checkCorrelation     = "snat_lrp_correlated"
	checkAssignedCovered = "assigned_ips_have_snat"
	checkNoStaleSNAT     = "no_stale_snat_rules"
)

func checkCatalog() []Check {
	return []Check{
		{
			ID:          checkSNATPresent,
			Description: "EgressIP SNAT rules exist on the cluster router",
			Severity:    Critical,
			Component:   "ovnkube-controller",
		},
		{
			ID:          checkLRPPresent,
			Description: "Logical router policies exist on the cluster router",
			Severity:    Critical,
			Component:   "ovnkube-controller",
		},
		{
			ID:          checkSNATParseClean,
			Description: "Every SNAT rule line parses into typed fields",
			Severity:    Warning,
			Component:   "ovn-northd",
		},
		{
			ID:          checkLRPParseClean,
			Description: "Every LRP line parses into typed fields",
			Severity:    Warning,
			Component:   "ovn-northd",
		},
		{
			ID:          checkCorrelation,
			Description: "SNAT external IPs are referenced by router policies",
			Severity:    Degraded,
			Component:   "ovnkube-controller",
		},
		{
			ID:          checkAssignedCovered,
			Description: "Every assigned EgressIP has a SNAT rule",
			Severity:    Critical,
			Component:   "ovnkube-cluster-manager",
		},
		{
			ID:          checkNoStaleSNAT,
			Description: "No SNAT rule exists without an assigned EgressIP",
			Severity:    Degraded,
			Component:   "ovnkube-controller",
		},
	}
}

// componentOwners maps ovn-kubernetes components to what they are
// responsible for in the EgressIP pipeline.
var componentOwners = map[string]ComponentMetadata{
	"ovnkube-cluster-manager": {
		Name:        "ovnkube-cluster-manager",
		Description: "assigns EgressIPs to egress-capable nodes",
	},
	"ovnkube-controller": {
		Name:        "ovnkube-controller",
		Description: "programs SNAT and reroute policies for assigned EgressIPs",
	},
	"ovn-northd": {
		Name:        "ovn-northd",
		Description: "translates the northbound database into logical flows",
	},
}

func checkByID(id string) (Check, bool) {
	for _, c := range checkCatalog() {
		if c.ID == id {
			return c, true
		}
	}
	return Check{}, false
}
