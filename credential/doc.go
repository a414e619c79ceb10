// Package credential manages bearer-credential issuance and verification using configured
// signing keys and strict validation semantics suitable for low-latency navigation paths.
package credential
