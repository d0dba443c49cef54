package config

import "strings"

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

// IsAllowedOrigin accepts listed origins, or any origin when "*" is listed.
func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	if _, ok := a["*"]; ok {
		return true
	}
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

func (s *Settings) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	for _, o := range s.Server.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = nullValue{}
		}
	}
	return origins
}

func (s *Settings) GetAllowedMethods() string {
	return "GET, POST, OPTIONS"
}

func (s *Settings) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
