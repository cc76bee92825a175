// Package credential issues and checks the secrets the development identity
// backend hands out: numeric verification codes (stored only as MACs) and
// RS256 ID tokens that stand in for a real backend's session tokens.
package credential
