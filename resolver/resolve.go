package resolver

import (
	"time"

	"github.com/warp/attendance-engine/generic"
)

// tier names the scope fields a MASTER rule must match; the others must be
// wildcards on the rule.
type tier struct {
	workPlace, employment, section, position bool
}

// masterTiers are tiers 2 through 12, in order.
var masterTiers = []tier{
	{workPlace: true, employment: true, section: true, position: true},
	{employment: true, section: true, position: true},
	{section: true, position: true},
	{position: true},
	{workPlace: true, employment: true, section: true},
	{employment: true, section: true},
	{section: true},
	{workPlace: true, employment: true},
	{employment: true},
	{workPlace: true},
	{},
}

// TierPerson is the tier number of a PERSON match; MASTER tiers follow.
const TierPerson = 1

func (t tier) matches(rule, emp Scope) bool {
	return field(t.workPlace, rule.WorkPlace, emp.WorkPlace) &&
		field(t.employment, rule.EmploymentContract, emp.EmploymentContract) &&
		field(t.section, rule.Section, emp.Section) &&
		field(t.position, rule.Position, emp.Position)
}

func field(required bool, rule, emp string) bool {
	if required {
		return rule == emp
	}
	return rule == ""
}

// Resolve returns the rule applicable to emp on target, or false. It never
// fails: absence of a match is a normal outcome. Identical inputs always
// yield the same rule.
func Resolve[T Rule](emp generic.Employee, candidates []T, target time.Time) (T, bool) {
	rule, t := ResolveTier(emp, candidates, target)
	return rule, t != 0
}

// ResolveTier is Resolve that also reports the matching tier (1-12), or 0.
func ResolveTier[T Rule](emp generic.Employee, candidates []T, target time.Time) (T, int) {
	var none T
	if target.IsZero() || emp.PersonalID == "" {
		return none, 0
	}
	// Ordered by rule code, so ties within a tier resolve the same way every time.
	narrowed := generic.LatestPerKey(candidates, target)

	for _, rule := range narrowed {
		if rule.Type() == ApplicationPerson && rule.Lists(emp.PersonalID) {
			return rule, TierPerson
		}
	}
	scope := ScopeOf(emp)
	for i, t := range masterTiers {
		for _, rule := range narrowed {
			if rule.Type() == ApplicationMaster && t.matches(rule.TargetScope(), scope) {
				return rule, TierPerson + 1 + i
			}
		}
	}
	return none, 0
}
