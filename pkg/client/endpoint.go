package client

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultAPIBase is used when neither an API URL nor an origin is known.
const DefaultAPIBase = "http://localhost:3000/api"

var absoluteURL = regexp.MustCompile(`(?i)^https?://`)

// ResolveAPIBase picks the API base URL.
//
// Precedence:
//  1. apiURL, if absolute (http/https), without trailing slash
//  2. apiURL resolved against origin, if both are set
//  3. origin + "/api"
//  4. DefaultAPIBase
func ResolveAPIBase(apiURL, origin string) string {
	origin = strings.TrimSpace(origin)

	if apiURL = strings.TrimSpace(apiURL); apiURL != "" {
		if absoluteURL.MatchString(apiURL) {
			return strings.TrimSuffix(apiURL, "/")
		}
		if origin != "" {
			if base, err := url.Parse(origin); err == nil && base.IsAbs() {
				if ref, err := url.Parse(apiURL); err == nil {
					return strings.TrimSuffix(base.ResolveReference(ref).String(), "/")
				}
			}
		}
	}

	if origin != "" {
		return strings.TrimSuffix(origin, "/") + "/api"
	}
	return DefaultAPIBase
}

// ResolveEndpoint returns the GraphQL endpoint for the given API URL and origin.
func ResolveEndpoint(apiURL, origin string) string {
	return ResolveAPIBase(apiURL, origin) + "/graphql"
}
