// Package mention extracts and resolves @mentions against the team roster.
//
// Token grammar: '@' followed by a run of word characters, optionally
// followed by a single space and a second run (so "@Aaron Smith" is one
// candidate). For each '@' the two-word candidate is tried before the
// one-word one. Resolution order against the roster: case-insensitive
// exact full-name match, then prefix/substring match on the full name,
// then equality with the first name only. The first roster entry that
// matches wins; duplicate member ids are suppressed. Unresolved tokens
// stay plain text.
package mention

import (
	"regexp"
	"strings"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
)

var tokenRe = regexp.MustCompile(`@([A-Za-z0-9_]+(?: [A-Za-z0-9_]+)?)`)

// Resolve returns mentions for body in order of appearance. It is a pure
// function: same body and roster always yield the same result.
func Resolve(body string, roster []domain.TeamMember) []domain.Mention {
	var out []domain.Mention
	seen := map[string]bool{}
	for _, m := range tokenRe.FindAllStringSubmatchIndex(body, -1) {
		pos := m[0]
		token := body[m[2]:m[3]]
		member, ok := resolveToken(token, roster)
		if !ok {
			continue
		}
		if seen[member.ID] {
			continue
		}
		seen[member.ID] = true
		out = append(out, domain.Mention{
			MemberID:    member.ID,
			DisplayName: member.Name,
			Position:    pos,
		})
	}
	return out
}

func resolveToken(token string, roster []domain.TeamMember) (domain.TeamMember, bool) {
	for _, candidate := range candidates(token) {
		if m, ok := match(candidate, roster); ok {
			return m, true
		}
	}
	return domain.TeamMember{}, false
}

// candidates lists lookups to try, widest first.
func candidates(token string) []string {
	token = strings.TrimSpace(token)
	if i := strings.IndexByte(token, ' '); i > 0 {
		return []string{token, token[:i]}
	}
	return []string{token}
}

func match(candidate string, roster []domain.TeamMember) (domain.TeamMember, bool) {
	lc := strings.ToLower(candidate)
	for _, m := range roster {
		if strings.ToLower(m.Name) == lc {
			return m, true
		}
	}
	for _, m := range roster {
		if strings.Contains(strings.ToLower(m.Name), lc) {
			return m, true
		}
	}
	for _, m := range roster {
		if strings.EqualFold(firstName(m.Name), candidate) {
			return m, true
		}
	}
	return domain.TeamMember{}, false
}

// firstName splits on whitespace and parentheses, e.g. "Sammy (Sam) Lee".
func firstName(name string) string {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '(' || r == ')'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
