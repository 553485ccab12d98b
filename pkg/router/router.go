// Package router holds the client-side route table of the web app. The
// server uses it to label SPA fallback responses and to build links.
package router

import (
	"fmt"
	"strings"
)

// Route is a named client route.
type Route struct {
	Name string
	Path string
}

// Route names.
const (
	RouteHome   = "home"
	RouteEditor = "editer"
)

// Table is an ordered list of routes.
type Table []Route

// Default is the app's route table.
var Default = Table{
	{Name: RouteHome, Path: "/"},
	{Name: RouteEditor, Path: "/editer"},
}

// Match returns the route for path. A trailing slash is ignored.
func (t Table) Match(path string) (Route, bool) {
	path = cleanPath(path)
	for _, r := range t {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// URL returns the absolute URL path of the named route under basePath.
func (t Table) URL(basePath, name string) (string, error) {
	for _, r := range t {
		if r.Name == name {
			base := strings.TrimSuffix(basePath, "/")
			return base + r.Path, nil
		}
	}
	return "", fmt.Errorf("unknown route %q", name)
}

// Label returns the route name for path, or "fallback" when nothing matches.
func (t Table) Label(path string) string {
	if r, ok := t.Match(path); ok {
		return r.Name
	}
	return "fallback"
}

func cleanPath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
