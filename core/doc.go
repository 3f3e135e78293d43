// Package core contains the form sync domain entities, store and upstream
// contracts, and the service that orchestrates forms, submissions, OAuth
// callbacks and webhook intake. Adapters depend on this package; core must
// not depend on transport or storage adapters.
package core
