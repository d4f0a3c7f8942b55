package auth

import "go.pilab.hu/accord/services"

// StaticPolicyEngine is a table-driven services.PolicyEngine: a role grants
// the actions listed for it, nothing else. Front-end layers that need real
// rule evaluation plug in their own engine instead.
type StaticPolicyEngine struct {
	rules map[string][]string // role id -> allowed actions
}

// NewStaticPolicyEngine builds a policy engine from a role→actions table,
// keyed by role id to match the snapshot tokens carry.
func NewStaticPolicyEngine(rules map[string][]string) *StaticPolicyEngine {
	return &StaticPolicyEngine{rules: rules}
}

// Allowed reports whether any of the roles grants the action.
func (p *StaticPolicyEngine) Allowed(roles []string, action string) bool {
	for _, role := range roles {
		for _, allowed := range p.rules[role] {
			if allowed == action {
				return true
			}
		}
	}
	return false
}

var _ services.PolicyEngine = (*StaticPolicyEngine)(nil)
