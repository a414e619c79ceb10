// Package municipality caches per-tenant module enablement consulted on every gated
// navigation.
package municipality
