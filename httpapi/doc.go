// Package httpapi serves the formsync routes over net/http: the OAuth
// connect flow, owner form management, public submissions and the
// webhook endpoint. Owner routes require a Bearer session token.
package httpapi
