package configstub

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Identity is a whoami answer for one session token.
type Identity struct {
	Token    string
	ID       string
	Email    string
	RoleSlug string
	// ProjectRoles overrides RoleSlug per project ref.
	ProjectRoles map[string]string
}

// ParseIdentities reads "token:role:email" entries. An optional fourth part
// lists per-project roles as "ref=role|ref=role". Identity ids are derived
// from the email so they are stable across restarts.
func ParseIdentities(entries []string) ([]Identity, error) {
	out := make([]Identity, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 && len(parts) != 4 {
			return nil, fmt.Errorf("configstub: identity %q: want token:role:email", entry)
		}
		token := strings.TrimSpace(parts[0])
		role := strings.ToLower(strings.TrimSpace(parts[1]))
		email := strings.ToLower(strings.TrimSpace(parts[2]))
		if token == "" || role == "" || email == "" {
			return nil, fmt.Errorf("configstub: identity %q: empty part", entry)
		}
		if seen[token] {
			return nil, fmt.Errorf("configstub: duplicate identity token %q", token)
		}
		seen[token] = true

		ident := Identity{
			Token:    token,
			ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String(),
			Email:    email,
			RoleSlug: role,
		}
		if len(parts) == 4 {
			roles, err := parseProjectRoles(parts[3])
			if err != nil {
				return nil, fmt.Errorf("configstub: identity %q: %w", entry, err)
			}
			ident.ProjectRoles = roles
		}
		out = append(out, ident)
	}
	return out, nil
}

func parseProjectRoles(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, "|") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		ref, role, ok := strings.Cut(pair, "=")
		ref = strings.TrimSpace(ref)
		role = strings.ToLower(strings.TrimSpace(role))
		if !ok || ref == "" || role == "" {
			return nil, fmt.Errorf("invalid project role %q", pair)
		}
		out[ref] = role
	}
	return out, nil
}

func (i Identity) traits() map[string]any {
	traits := map[string]any{
		"email":     i.Email,
		"role_slug": i.RoleSlug,
	}
	if len(i.ProjectRoles) > 0 {
		roles := make(map[string]any, len(i.ProjectRoles))
		for ref, role := range i.ProjectRoles {
			roles[ref] = role
		}
		traits["project_roles"] = roles
	}
	return traits
}
