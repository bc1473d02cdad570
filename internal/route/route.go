// Package route describes the gateway's proxy endpoints declaratively.
package route

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/valyala/fasttemplate"
)

// AuthMode controls whether a route needs a credential.
type AuthMode string

const (
	AuthRequired AuthMode = "required"
	AuthOptional AuthMode = "optional"
)

// QueryMode controls which inbound query parameters reach the upstream.
type QueryMode string

const (
	QueryNone   QueryMode = "none"
	QueryListed QueryMode = "listed" // only params declared with in = "query"
	QueryAll    QueryMode = "all"
)

// Location is where a parameter is read from.
type Location string

const (
	InPath  Location = "path"
	InQuery Location = "query"
	InBody  Location = "body"
)

// ParamType is the expected shape of a parameter value.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeInt    ParamType = "int"
	TypeBool   ParamType = "bool"
)

// Kind selects the handler behind a route.
type Kind string

const (
	KindProxy      Kind = "proxy"
	KindAuthStatus Kind = "auth_status"
)

// Param declares one inbound parameter.
type Param struct {
	Name     string    `toml:"name"`
	In       Location  `toml:"in"`
	Type     ParamType `toml:"type"`
	Required bool      `toml:"required"`
}

// Route maps an inbound path and method set onto an upstream path template.
type Route struct {
	Name     string    `toml:"name"`
	Path     string    `toml:"path"`     // echo pattern, e.g. /api/users/:id
	Methods  []string  `toml:"methods"`  // upper-case HTTP methods
	Upstream string    `toml:"upstream"` // template, e.g. /users/{id}
	Auth     AuthMode  `toml:"auth"`
	Query    QueryMode `toml:"query"`
	Kind     Kind      `toml:"kind"`
	Params   []Param   `toml:"params"`
}

// Allows reports whether method is in the route's method set.
func (r *Route) Allows(method string) bool {
	return slices.Contains(r.Methods, method)
}

// RequiresAuth reports whether a credential is mandatory.
func (r *Route) RequiresAuth() bool {
	return r.Auth != AuthOptional
}

// ParamsIn returns the declared parameters read from loc.
func (r *Route) ParamsIn(loc Location) []Param {
	var out []Param
	for _, p := range r.Params {
		if p.In == loc {
			out = append(out, p)
		}
	}
	return out
}

// BuildPath substitutes path parameters into the upstream template.
// Values are path-escaped; a placeholder with no value is an error.
func (r *Route) BuildPath(params map[string]string) (string, error) {
	var missing string
	out := fasttemplate.ExecuteFuncString(r.Upstream, "{", "}", func(w io.Writer, name string) (int, error) {
		v, ok := params[name]
		if !ok && missing == "" {
			missing = name
		}
		return w.Write([]byte(url.PathEscape(v)))
	})
	if missing != "" {
		return "", fmt.Errorf("route %s: no value for path parameter %q", r.Name, missing)
	}
	return out, nil
}

// placeholders lists the {name} tags of the upstream template.
func (r *Route) placeholders() []string {
	var names []string
	fasttemplate.ExecuteFuncString(r.Upstream, "{", "}", func(_ io.Writer, name string) (int, error) {
		names = append(names, name)
		return 0, nil
	})
	return names
}

// FilterQuery returns the query parameters forwarded upstream under the
// route's query mode. Repeated keys keep all their values.
func (r *Route) FilterQuery(q url.Values) url.Values {
	out := make(url.Values)
	switch r.Query {
	case QueryAll:
		for k, v := range q {
			out[k] = slices.Clone(v)
		}
	case QueryListed:
		for _, p := range r.ParamsIn(InQuery) {
			if v, ok := q[p.Name]; ok {
				out[p.Name] = slices.Clone(v)
			}
		}
	}
	return out
}

var knownMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
}

// Normalize fills defaulted fields and upper-cases methods.
func (r *Route) Normalize() {
	for i, m := range r.Methods {
		r.Methods[i] = strings.ToUpper(m)
	}
	if r.Auth == "" {
		r.Auth = AuthRequired
	}
	if r.Query == "" {
		r.Query = QueryNone
		if len(r.ParamsIn(InQuery)) > 0 {
			r.Query = QueryListed
		}
	}
	if r.Kind == "" {
		r.Kind = KindProxy
	}
	for i := range r.Params {
		if r.Params[i].Type == "" {
			r.Params[i].Type = TypeString
		}
		if r.Params[i].In == InPath {
			r.Params[i].Required = true
		}
	}
}

// Validate checks a normalized route for internal consistency.
func (r *Route) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("route with path %q has no name", r.Path)
	}
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("route %s: path must start with '/'; got %q", r.Name, r.Path)
	}
	if !strings.HasPrefix(r.Upstream, "/") {
		return fmt.Errorf("route %s: upstream must start with '/'; got %q", r.Name, r.Upstream)
	}
	if len(r.Methods) == 0 {
		return fmt.Errorf("route %s: at least one method is required", r.Name)
	}
	for _, m := range r.Methods {
		if !slices.Contains(knownMethods, m) {
			return fmt.Errorf("route %s: unsupported method %q", r.Name, m)
		}
	}
	switch r.Auth {
	case AuthRequired, AuthOptional:
	default:
		return fmt.Errorf("route %s: auth must be required or optional; got %q", r.Name, r.Auth)
	}
	switch r.Query {
	case QueryNone, QueryListed, QueryAll:
	default:
		return fmt.Errorf("route %s: query must be none, listed or all; got %q", r.Name, r.Query)
	}
	switch r.Kind {
	case KindProxy:
	case KindAuthStatus:
		if !r.Allows(http.MethodGet) || len(r.Methods) != 1 {
			return fmt.Errorf("route %s: auth_status routes accept GET only", r.Name)
		}
	default:
		return fmt.Errorf("route %s: unknown kind %q", r.Name, r.Kind)
	}

	pathParams := make(map[string]bool)
	for _, seg := range strings.Split(r.Path, "/") {
		if strings.HasPrefix(seg, ":") {
			pathParams[seg[1:]] = true
		}
	}

	seen := make(map[string]bool)
	for _, p := range r.Params {
		key := string(p.In) + ":" + p.Name
		if p.Name == "" {
			return fmt.Errorf("route %s: parameter without a name", r.Name)
		}
		if seen[key] {
			return fmt.Errorf("route %s: duplicate parameter %q in %s", r.Name, p.Name, p.In)
		}
		seen[key] = true

		switch p.In {
		case InPath:
			if !pathParams[p.Name] {
				return fmt.Errorf("route %s: path parameter %q does not appear in %q", r.Name, p.Name, r.Path)
			}
		case InQuery, InBody:
		default:
			return fmt.Errorf("route %s: parameter %q has unknown location %q", r.Name, p.Name, p.In)
		}
		switch p.Type {
		case TypeString, TypeInt, TypeBool:
		default:
			return fmt.Errorf("route %s: parameter %q has unknown type %q", r.Name, p.Name, p.Type)
		}
	}

	for _, name := range r.placeholders() {
		if !pathParams[name] {
			return fmt.Errorf("route %s: upstream placeholder {%s} is not a path parameter", r.Name, name)
		}
	}
	return nil
}
