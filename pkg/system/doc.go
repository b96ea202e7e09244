// Package system holds process-wide helpers: logger construction and the
// request-scoped logging helpers shared by the HTTP handlers.
package system
