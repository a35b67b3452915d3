package schemata

// Roles with a fixed meaning in access rules. Any other role never matches.
const (
	RoleAnonymous = "anonymous"
	RoleAdmin     = "admin"
	RoleUser      = "user"
)

// MatchesRole reports whether role applies to the actor. An empty role
// matches every caller.
func MatchesRole(role string, actor Actor) bool {
	switch role {
	case "":
		return true
	case RoleAnonymous:
		return actor.IsAnonymous()
	case RoleAdmin:
		return actor.IsAdministrator()
	case RoleUser:
		return actor.Kind() == ActorUser
	}
	return false
}

// Matches reports whether the rule applies to a request.
func (r AccessRule) Matches(method Method, actor Actor) bool {
	if r.Method != "" && r.Method != method {
		return false
	}
	return MatchesRole(r.Role, actor)
}

// EvaluateRules returns the action of the first matching rule, denying
// when none matches.
func EvaluateRules(rules []AccessRule, method Method, actor Actor) bool {
	for _, r := range rules {
		if r.Matches(method, actor) {
			return r.Action.Allowed()
		}
	}
	return false
}

// CheckAccess decides whether actor may call endpoint with method. The
// administrator always passes; otherwise the endpoint's own rules apply,
// falling back to the application default, and deny when neither exists.
func (d *ApplicationDefinition) CheckAccess(endpoint *Endpoint, method Method, actor Actor) bool {
	if actor.IsAdministrator() {
		return true
	}
	rules := endpoint.Access
	if rules == nil {
		rules = d.API.DefaultAccess
	}
	if rules == nil {
		return false
	}
	return EvaluateRules(rules, method, actor)
}
