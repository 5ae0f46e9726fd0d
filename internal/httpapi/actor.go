package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

// Identity headers set by the authenticating gateway in front of this
// service. The engine trusts them as-is; it never authenticates.
const (
	headerActorID     = "X-Actor-Id"
	headerActorRole   = "X-Actor-Role"
	headerActorScopes = "X-Actor-Scopes" // CSV of "type:target" pairs
)

func actorFromHeaders(r *http.Request) (types.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(headerActorID))
	if id == "" {
		return types.Actor{}, errors.New("missing " + headerActorID + " header")
	}

	role, err := types.ParseRole(r.Header.Get(headerActorRole))
	if err != nil {
		return types.Actor{}, err
	}

	scopes, err := parseScopes(r.Header.Get(headerActorScopes))
	if err != nil {
		return types.Actor{}, err
	}

	return types.Actor{ID: id, Role: role, ScopeMemberships: scopes}, nil
}

func parseScopes(v string) ([]types.Scope, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}

	var out []types.Scope
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, target, ok := strings.Cut(part, ":")
		if !ok {
			return nil, errors.New("malformed scope " + part + ", want type:target")
		}
		out = append(out, types.Scope{
			Type:     types.ScopeType(strings.TrimSpace(kind)),
			TargetID: strings.TrimSpace(target),
		})
	}
	return out, nil
}
