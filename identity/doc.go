// Package identity loads and interrogates the hydrated admin user record backing
// capability checks.
package identity
