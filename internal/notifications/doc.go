// Package notifications delivers pin events via ntfy.
//
// The default implementation publishes to the ntfy topic configured in
// config.toml and degrades to a no-op when no topic is set. Observer bridges
// the record store and the auto-pin scheduler to the Service so status changes
// become push notifications without either package knowing about HTTP.
package notifications
