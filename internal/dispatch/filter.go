package dispatch

import (
	"fmt"
	"strings"

	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
)

// A predicate over the addressing fields of a request.
type Filter interface {
	// Report whether a request with the given fields is selected. path is the
	// rendered form of the request path and query its serialised query.
	Matches(protocol, host string, port int, path, query string) bool

	// Whether two filters select exactly the same requests.
	Equal(other Filter) bool

	String() string
}

// Selects requests by exact, case-insensitive comparison of each set field.
// Empty strings and a zero port are wildcards, so the zero value matches
// every request. Path is compared in its canonical form.
type PlainFilter struct {
	Protocol string
	Host     string
	Port     int
	Path     string
	Query    string
}

func (f PlainFilter) Matches(protocol, host string, port int, path, query string) bool {
	return matchFields(f.Protocol, f.Host, f.Port, f.Path, f.Query, protocol, host, port, path, query)
}

func (f PlainFilter) Equal(other Filter) bool {
	o, ok := other.(PlainFilter)
	if !ok {
		if p, isPtr := other.(*PlainFilter); isPtr && p != nil {
			o, ok = *p, true
		}
	}
	return ok && equalFields(f.Protocol, f.Host, f.Port, f.Path, f.Query, o.Protocol, o.Host, o.Port, o.Path, o.Query)
}

func (f PlainFilter) String() string {
	return formatFilter("plain", f.Protocol, f.Host, f.Port, f.Path, f.Query)
}

// Selects the requests addressed to a mounted resource. Matching works as for
// PlainFilter; the path additionally serves as the root the resource is
// mounted at.
type ResourceFilter struct {
	Protocol string
	Host     string
	Port     int
	Path     string
	Query    string
}

func (f ResourceFilter) Matches(protocol, host string, port int, path, query string) bool {
	return matchFields(f.Protocol, f.Host, f.Port, f.Path, f.Query, protocol, host, port, path, query)
}

func (f ResourceFilter) Equal(other Filter) bool {
	o, ok := other.(ResourceFilter)
	if !ok {
		if p, isPtr := other.(*ResourceFilter); isPtr && p != nil {
			o, ok = *p, true
		}
	}
	return ok && equalFields(f.Protocol, f.Host, f.Port, f.Path, f.Query, o.Protocol, o.Host, o.Port, o.Path, o.Query)
}

func (f ResourceFilter) String() string {
	return formatFilter("resource", f.Protocol, f.Host, f.Port, f.Path, f.Query)
}

// The path the resource is mounted at.
func (f ResourceFilter) Root() proto.Path {
	return proto.ParsePath(f.Path)
}

//
// Helpers.
//

func canonicalPath(p string) string {
	if p == "" {
		return ""
	}
	return proto.ParsePath(p).String()
}

// Render a query the way ParameterList renders it, so filters compare equal
// however they escape their values. Undecodable queries are left alone.
func canonicalQuery(q string) string {
	if q == "" {
		return ""
	}
	pl, err := proto.ParseQuery(q)
	if err != nil {
		return q
	}
	return pl.String()
}

func matchString(want, got string) bool {
	return want == "" || strings.EqualFold(want, got)
}

func matchFields(fProtocol, fHost string, fPort int, fPath, fQuery string, protocol, host string, port int, path, query string) bool {
	return matchString(fProtocol, protocol) &&
		matchString(fHost, host) &&
		(fPort == 0 || fPort == port) &&
		matchString(canonicalPath(fPath), path) &&
		matchString(canonicalQuery(fQuery), query)
}

func equalFields(aProtocol, aHost string, aPort int, aPath, aQuery string, bProtocol, bHost string, bPort int, bPath, bQuery string) bool {
	return strings.EqualFold(aProtocol, bProtocol) &&
		strings.EqualFold(aHost, bHost) &&
		aPort == bPort &&
		strings.EqualFold(canonicalPath(aPath), canonicalPath(bPath)) &&
		strings.EqualFold(canonicalQuery(aQuery), canonicalQuery(bQuery))
}

func formatFilter(kind, protocol, host string, port int, path, query string) string {
	star := func(s string) string {
		if s == "" {
			return "*"
		}
		return s
	}
	portStr := "*"
	if port != 0 {
		portStr = fmt.Sprint(port)
	}
	return fmt.Sprintf("%s(%s://%s:%s%s?%s)", kind, star(protocol), star(host), portStr, star(canonicalPath(path)), star(canonicalQuery(query)))
}
