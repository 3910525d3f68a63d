// Package realtime implements a duplex websocket client for a realtime
// conversational engine.
//
// It handles session negotiation, audio buffer append/commit, response
// lifecycle control, and decodes inbound wire messages into a typed event
// stream consumed by a single receiver.
package realtime
