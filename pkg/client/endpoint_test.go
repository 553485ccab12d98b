package client

import "testing"

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		apiURL string
		origin string
		want   string
	}{
		{"absolute api url", "https://api.example.com/", "", "https://api.example.com/graphql"},
		{"absolute api url ignores origin", "http://api.local:4000/api", "https://site.io", "http://api.local:4000/api/graphql"},
		{"scheme is case insensitive", "HTTPS://X.io/api", "", "HTTPS://X.io/api/graphql"},
		{"relative api url against origin", "/backend/", "https://site.io", "https://site.io/backend/graphql"},
		{"relative api url without origin", "/backend", "", DefaultAPIBase + "/graphql"},
		{"origin only", "", "https://site.io/", "https://site.io/api/graphql"},
		{"whitespace trimmed", "  ", " https://site.io ", "https://site.io/api/graphql"},
		{"nothing set", "", "", "http://localhost:3000/api/graphql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveEndpoint(tt.apiURL, tt.origin); got != tt.want {
				t.Errorf("ResolveEndpoint(%q, %q) = %q, want %q", tt.apiURL, tt.origin, got, tt.want)
			}
		})
	}
}
