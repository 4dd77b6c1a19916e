package access

import "sort"

// FirstLevel returns the precomputed browsing entry points for an email:
// the highest allowed rule paths a client should render at the root of the
// gallery. Identities outside every group get an empty list.
func (rs *Ruleset) FirstLevel(email string) []string {
	if paths, ok := rs.firstLevel[email]; ok {
		return paths
	}
	return []string{}
}

func (rs *Ruleset) computeFirstLevel() map[string][]string {
	table := make(map[string][]string, len(rs.allEmails))
	for email := range rs.allEmails {
		table[email] = rs.firstLevelFor(email)
	}
	return table
}

// firstLevelFor walks every rule's ancestry chain and keeps the first
// allowed entry of each chain segment. A non-inheritable allowed rule ends
// its segment, so deeper allowed rules open a fresh entry point.
func (rs *Ruleset) firstLevelFor(email string) []string {
	set := make(map[string]struct{})
	for i := range rs.folders {
		rule := &rs.folders[i]
		ancestor := rs.ancestorOf(rule.Path)
		for _, path := range rs.simplifyChain(email, ancestor, rule.Path) {
			set[path] = struct{}{}
		}
	}

	paths := make([]string, 0, len(set))
	for path := range set {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// ancestorOf finds the topmost rule whose path prefixes the given one. Every
// rule prefixes itself, so the result is never empty.
func (rs *Ruleset) ancestorOf(path string) string {
	ancestor := path
	found := false
	for i := range rs.folders {
		rule := &rs.folders[i]
		if !rs.matches(rule.Path, path) {
			continue
		}
		if !found || len(rule.Path) < len(ancestor) {
			ancestor = rule.Path
			found = true
		}
	}
	return ancestor
}

// simplifyChain walks the rules between from and to in order and reports
// which of them start a browsable run: an allowed rule is kept unless the
// previous allowed rule already extends over it via inheritance.
func (rs *Ruleset) simplifyChain(email, from, to string) []string {
	var kept []string
	inherited := false
	for i := range rs.folders {
		rule := &rs.folders[i]
		if !rs.matches(from, rule.Path) || !rs.matches(rule.Path, to) {
			continue
		}
		if rs.IsAllowed(rule.Path, email) {
			if !inherited {
				kept = append(kept, rule.Path)
			}
			inherited = rule.Inheritable
		} else {
			inherited = false
		}
	}
	return kept
}
