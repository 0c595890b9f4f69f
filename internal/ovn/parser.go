package ovn

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/ovnwatch/ovnwatch/internal/types"
)

// lrPolicyHeader is the banner line ovn-nbctl prints before policy rows.
const lrPolicyHeader = "Routing"

// ParseSNATLine parses one lr-nat-list line. A line shaped like
// "snat <externalIP> <logicalIP> <logicalPort>" yields a typed record;
// anything else comes back as an attempted record with the raw text
// preserved and no typed fields.
func ParseSNATLine(line string) types.RuleRecord {
	rec := types.RuleRecord{Kind: types.KindSNAT, Raw: line}

	parts := strings.Fields(line)
	if len(parts) >= 4 && strings.EqualFold(parts[0], "snat") {
		rec.SNAT = &types.SNATRule{
			ExternalIP:  parts[1],
			LogicalIP:   parts[2],
			LogicalPort: parts[3],
		}
	}
	return rec
}

// ParseLRPLine parses one lr-policy-list line as "priority match action",
// where action is everything after the second field, not re-split. A
// non-integer priority keeps the record parsed but flags the priority as
// a typed issue.
func ParseLRPLine(line string) types.RuleRecord {
	rec := types.RuleRecord{Kind: types.KindLRP, Raw: line}

	parts := splitRuleLine(line, 3)
	if len(parts) < 3 {
		return rec
	}

	rule := &types.LRPRule{
		RawPriority: parts[0],
		Match:       parts[1],
		Action:      parts[2],
	}
	if prio, err := strconv.Atoi(parts[0]); err == nil {
		rule.Priority = prio
	} else {
		rule.PriorityErr = "priority is not an integer: " + strconv.Quote(parts[0])
	}
	rec.LRP = rule
	return rec
}

// ParseRules turns raw command output into an ordered record list for
// one kind. SNAT keeps every line containing "snat" (parsed or not);
// LRP drops blank lines and the "Routing" header before parsing, since
// those are not rule data. Input line order is preserved.
func ParseRules(kind types.RuleKind, output string) []types.RuleRecord {
	var records []types.RuleRecord

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		switch kind {
		case types.KindSNAT:
			if strings.Contains(strings.ToLower(line), "snat") {
				records = append(records, ParseSNATLine(line))
			}
		case types.KindLRP:
			if line == "" || strings.HasPrefix(line, lrPolicyHeader) {
				continue
			}
			records = append(records, ParseLRPLine(line))
		}
	}
	return records
}

// splitRuleLine splits on runs of whitespace into at most n parts; the
// last part keeps the remainder of the line intact.
func splitRuleLine(line string, n int) []string {
	var parts []string
	rest := strings.TrimSpace(line)

	for len(parts) < n-1 {
		i := strings.IndexFunc(rest, unicode.IsSpace)
		if i < 0 {
			break
		}
		parts = append(parts, rest[:i])
		rest = strings.TrimLeftFunc(rest[i:], unicode.IsSpace)
	}
	if rest != "" {
		parts = append(parts, rest)
	}
	return parts
}
