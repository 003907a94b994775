// Package agent resolves free-text calendar requests into action records.
//
// A Resolver runs one cycle per query:
//
//	query -> Router -> Loop (Reasoner <-> Gatherer) -> action.Record
//
// The Router answers empty and out-of-domain queries on its own. Every
// other query enters the Loop, which asks a Reasoner for the next Step and
// runs its gathering calls (read_schedule, search_events, read_event,
// list_calendars) through the Gatherer until the Reasoner proposes exactly
// one terminal call. The terminal call becomes the cycle's record; nothing
// is written to the calendar.
//
// Gathering calls are bounded by Config.MaxRoundTrips and by the caller's
// deadline. A cycle that hits either bound ends with a no-action record
// whose reason starts with ErrLoopExhausted.
//
// Credentials travel in an auth.Carrier that the Resolver closes when the
// cycle ends. Port calls run through a Bridge so that a slow port cannot
// hold a cycle past its deadline.
package agent
