// Package stash parks a blocked request's method, URL, and parameters under
// a short opaque key so it can be replayed after re-authentication succeeds.
package stash

import "net/url"

// Entry is one parked request. Retrievable only with both the key and the
// matching user id.
type Entry struct {
	UserID string     `json:"user_id"`
	RuleID string     `json:"rule_id"`
	Method string     `json:"method"`
	URL    string     `json:"url"`
	Params url.Values `json:"params"`
}
