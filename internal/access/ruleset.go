// Package access implements the folder authorization engine: ordered
// prefix rules with opt-in inheritance, group principals, and the derived
// first-level folder table.
package access

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/MindFlavor/nas-gallery/internal/config"
)

// Ruleset is an immutable snapshot of folder rules, groups, and the lookup
// tables derived from them. Decision methods are pure, so a snapshot can be
// shared across requests and swapped wholesale on reload.
type Ruleset struct {
	folders           []config.Folder
	groups            map[string][]string
	allEmails         map[string]struct{}
	segmentBoundaries bool
	firstLevel        map[string][]string
	logger            *slog.Logger
}

// NewRuleset builds a snapshot from the configured groups and folder rules.
// Rules are evaluated in path order, so the input is cloned and sorted here
// and never mutated again. The first-level folder table for every known
// email is precomputed at this point.
func NewRuleset(logger *slog.Logger, groups []config.Group, folders []config.Folder, segmentBoundaries bool) *Ruleset {
	if logger == nil {
		logger = slog.Default()
	}

	sorted := make([]config.Folder, len(folders))
	copy(sorted, folders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	groupIndex := make(map[string][]string, len(groups))
	allEmails := make(map[string]struct{})
	for _, group := range groups {
		groupIndex[group.Name] = group.Members
		for _, email := range group.Members {
			allEmails[email] = struct{}{}
		}
	}

	rs := &Ruleset{
		folders:           sorted,
		groups:            groupIndex,
		allEmails:         allEmails,
		segmentBoundaries: segmentBoundaries,
		logger:            logger.With(slog.String("component", "access")),
	}
	rs.firstLevel = rs.computeFirstLevel()
	return rs
}

// IsAllowed walks every rule whose path prefixes the requested one, in
// order, accumulating allowed and denied principals. A rule that breaks
// inheritance resets both sets; inheritability always reverts to the
// current rule's flag. The request is allowed when the accumulated policy
// reaches it (exact rule match or an inheritable tail rule) and the email
// is in the allowed set without being in the denied one.
func (rs *Ruleset) IsAllowed(path, email string) bool {
	allowed := make(map[string]struct{})
	denied := make(map[string]struct{})
	lastPath := "/"
	inheritable := false

	for i := range rs.folders {
		rule := &rs.folders[i]
		if !rs.matches(rule.Path, path) {
			continue
		}
		if rule.BreaksInheritance {
			allowed = make(map[string]struct{})
			denied = make(map[string]struct{})
			inheritable = false
		}
		inheritable = rule.Inheritable
		for _, principal := range rule.Allowed {
			allowed[principal] = struct{}{}
		}
		for _, principal := range rule.Denied {
			denied[principal] = struct{}{}
		}
		lastPath = rule.Path
	}

	allowedEmails := rs.explode(allowed)
	deniedEmails := rs.explode(denied)

	if path != lastPath && !inheritable {
		return false
	}
	if _, deny := deniedEmails[email]; deny {
		return false
	}
	_, ok := allowedEmails[email]
	return ok
}

// IdentityAllowed reports whether the identity may use the service at all:
// forced identities always may, everyone else must appear in some group.
func (rs *Ruleset) IdentityAllowed(id Identity) bool {
	if id.Forced {
		return true
	}
	_, ok := rs.allEmails[id.Email]
	return ok
}

// matches reports whether rulePath covers target. The historical contract
// is plain string prefixing, where /a/b also covers /a/bc; segment-aware
// matching additionally requires the prefix to end on a path boundary.
func (rs *Ruleset) matches(rulePath, target string) bool {
	if !strings.HasPrefix(target, rulePath) {
		return false
	}
	if !rs.segmentBoundaries {
		return true
	}
	if len(target) == len(rulePath) || strings.HasSuffix(rulePath, "/") {
		return true
	}
	return target[len(rulePath)] == '/'
}

// explode resolves #group references into member emails. A reference to a
// missing group is logged and skipped so one typo cannot widen or void the
// whole policy.
func (rs *Ruleset) explode(principals map[string]struct{}) map[string]struct{} {
	emails := make(map[string]struct{}, len(principals))
	for principal := range principals {
		name, isGroup := strings.CutPrefix(principal, "#")
		if !isGroup {
			emails[principal] = struct{}{}
			continue
		}
		members, ok := rs.groups[name]
		if !ok {
			rs.logger.Warn("folder rule references a group that does not exist",
				slog.String("group", principal))
			continue
		}
		for _, email := range members {
			emails[email] = struct{}{}
		}
	}
	return emails
}
