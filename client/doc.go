// Package client issues authenticated JSON requests against the municipal services
// backend on behalf of navigation load plans.
package client
