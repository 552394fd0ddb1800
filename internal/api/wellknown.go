package api

import "net/http"

type manifest struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	APIBase   string            `json:"api_base"`
	Auth      map[string]string `json:"auth"`
	Endpoints map[string]string `json:"endpoints"`
	Health    string            `json:"health"`
}

// wellKnownHandler serves /.well-known/samely.json so clients can discover
// the API base and auth scheme.
func wellKnownHandler(version string) http.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	m := manifest{
		Name:    "Same'ly",
		Version: version,
		APIBase: "/api/v1",
		Auth: map[string]string{
			"type":   "bearer",
			"header": "Authorization",
			"login":  "/api/v1/auth/login",
		},
		Endpoints: map[string]string{
			"teams":          "/api/v1/teams",
			"my_assignments": "/api/v1/assignments/my",
			"ta_assignments": "/api/v1/assignments/ta",
			"team":           "/api/v1/teams/{team}",
			"surahs":         "/api/v1/surahs",
		},
		Health: "/health",
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m)
	}
}
