// Package intent reads calendar requests lexically.
//
// Analyze extracts the pieces the router and the rule-based reasoner need
// from a free-text query: a suggested action kind, date and clock
// expressions resolved against a reference time, keywords for event search
// and a title for new events. It knows nothing about calendars or
// credentials and never fails.
package intent
