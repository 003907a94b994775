// Package reasoner provides the decision procedures plugged into the
// resolution loop.
//
// Rules is deterministic and works offline: it reads the lexical analysis
// of the query, searches for the event a request is about, widens the
// search after a miss and reads candidates one at a time before giving up
// as ambiguous.
//
// OpenAI asks a chat model through function calling, advertising every
// registry tool with its JSON Schema.
package reasoner
