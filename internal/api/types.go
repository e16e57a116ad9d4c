// Package api defines the wire contract between the console and the
// honeypot monitoring service.
package api

import "encoding/json"

// Endpoints holds the service paths the console depends on. Values are
// relative to the API base URL.
type Endpoints struct {
	CsrfToken    string
	Login        string
	Logout       string
	Session      string
	Interactions string
	Stats        string
	Analytics    string
}

// DefaultEndpoints returns the endpoint set exposed by the monitoring
// service under its admin prefix.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		CsrfToken:    "/honeypot/admin/csrf-token",
		Login:        "/honeypot/admin/login",
		Logout:       "/honeypot/admin/logout",
		Session:      "/honeypot/admin/session",
		Interactions: "/honeypot/interactions",
		Stats:        "/honeypot/detailed-stats",
		Analytics:    "/honeypot/combined-analytics",
	}
}

type CsrfTokenResponse struct {
	CsrfToken string `json:"csrf_token"`
}

type LoginRequest struct {
	AdminKey string `json:"adminKey"`
}

type SessionResponse struct {
	IsAuthenticated bool `json:"isAuthenticated"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// InteractionRecord is an externally defined capture record. Common
// fields are typed; nested sub-objects (user-agent parsing, geolocation,
// heuristic explanations) are carried opaquely and never mutated.
type InteractionRecord struct {
	ID           string          `json:"_id"`
	Timestamp    string          `json:"timestamp"`
	IPAddress    string          `json:"ip_address"`
	Path         string          `json:"path"`
	PageType     string          `json:"page_type"`
	Category     string          `json:"category"`
	Action       string          `json:"action"`
	UserAgent    json.RawMessage `json:"ua_info,omitempty"`
	GeoInfo      json.RawMessage `json:"geo_info,omitempty"`
	Explanations json.RawMessage `json:"explanations,omitempty"`
	Extra        json.RawMessage `json:"details,omitempty"`
}

// DetailedStats mirrors the service's detailed-stats payload. Only the
// fields the console renders are typed.
type DetailedStats struct {
	TotalAttempts int            `json:"total_attempts"`
	UniqueIPs     int            `json:"unique_ips"`
	TopPaths      []CountedEntry `json:"top_paths"`
	TopCategories []CountedEntry `json:"top_categories"`
}

type CountedEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// CombinedAnalytics mirrors the service's dashboard overview payload.
type CombinedAnalytics struct {
	TotalAttempts  int             `json:"total_attempts"`
	RecentActivity json.RawMessage `json:"recent_activity,omitempty"`
}
