// Package routes holds the path constants shared between the route
// table, the interceptors that allowlist or redirect to specific
// paths, and the handlers that issue redirects.
package routes

const (
	Index    = "/api/files"
	Login    = "/api/auth/login"
	Logout   = "/api/auth/logout"
	Settings = "/api/auth/settings"
	NewUser  = "/api/auth/users/new"
)
