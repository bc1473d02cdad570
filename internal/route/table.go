package route

import (
	"fmt"
	"net/http"
)

// Table is the ordered set of routes served by the gateway.
type Table []Route

// Defaults returns the built-in route table.
func Defaults() Table {
	id := Param{Name: "id", In: InPath, Type: TypeInt, Required: true}

	t := Table{
		{
			Name:     "refresh-token",
			Path:     "/api/auth/refresh",
			Methods:  []string{http.MethodPost},
			Upstream: "/auth/refresh",
			Auth:     AuthOptional,
			Params: []Param{
				{Name: "refresh_token", In: InBody, Type: TypeString, Required: true},
			},
		},
		{
			Name:     "auth-status",
			Path:     "/api/auth/status",
			Methods:  []string{http.MethodGet},
			Upstream: "/users/me",
			Auth:     AuthOptional,
			Kind:     KindAuthStatus,
		},
		{
			Name:     "current-user",
			Path:     "/api/users/me",
			Methods:  []string{http.MethodGet, http.MethodPut},
			Upstream: "/users/me",
		},
		{
			Name:     "user-by-id",
			Path:     "/api/users/:id",
			Methods:  []string{http.MethodGet, http.MethodPut, http.MethodDelete},
			Upstream: "/users/{id}",
			Params:   []Param{id},
		},
		{
			Name:     "user-status",
			Path:     "/api/users/:id/status",
			Methods:  []string{http.MethodPut},
			Upstream: "/users/{id}/status",
			Params: []Param{
				id,
				{Name: "is_active", In: InBody, Type: TypeBool, Required: true},
			},
		},
		{
			Name:     "users-list",
			Path:     "/api/users",
			Methods:  []string{http.MethodGet},
			Upstream: "/users/",
			Query:    QueryListed,
			Params: []Param{
				{Name: "skip", In: InQuery, Type: TypeInt},
				{Name: "limit", In: InQuery, Type: TypeInt},
				{Name: "role", In: InQuery, Type: TypeString},
			},
		},
		{
			Name:     "analytics-dashboard",
			Path:     "/api/analytics/dashboard",
			Methods:  []string{http.MethodGet},
			Upstream: "/analytics/dashboard",
			Query:    QueryAll,
		},
	}
	for i := range t {
		t[i].Normalize()
	}
	return t
}

// Validate checks every route and rejects duplicate names or paths.
func (t Table) Validate() error {
	names := make(map[string]bool, len(t))
	paths := make(map[string]bool, len(t))
	for i := range t {
		r := &t[i]
		if err := r.Validate(); err != nil {
			return err
		}
		if names[r.Name] {
			return fmt.Errorf("duplicate route name %q", r.Name)
		}
		if paths[r.Path] {
			return fmt.Errorf("duplicate route path %q", r.Path)
		}
		names[r.Name] = true
		paths[r.Path] = true
	}
	return nil
}

// Lookup returns the route with the given name.
func (t Table) Lookup(name string) (*Route, bool) {
	for i := range t {
		if t[i].Name == name {
			return &t[i], true
		}
	}
	return nil, false
}
