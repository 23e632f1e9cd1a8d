// Package cdp defines the wire-level vocabulary of the Chrome DevTools
// Protocol as used by this driver: the JSON message envelope exchanged over
// the debugging websocket, the remote error shape, and builders for the
// small set of commands and events the driver core exercises.
//
// # Envelope
//
// Every frame on the wire is a Message. Outgoing requests carry an id and a
// method; responses echo the id with either a result or an error; unsolicited
// events carry a method and params but no id. Correlation of responses to
// requests is solely by id.
//
// # Scope
//
// This package is deliberately not a full protocol catalogue. It covers the
// Target domain lifecycle (discovery, creation, destruction), basic Page
// navigation, and the handful of Browser and Runtime calls the driver needs.
// Anything else can be issued through session.Send with an ad-hoc Command.
package cdp
