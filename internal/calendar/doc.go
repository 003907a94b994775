// Package calendar is the calendar port of noon.
//
// Reader is the read-only side used by the information-gathering tools of a
// resolution cycle; Writer is used only by Apply, the execution backend that
// turns create, update and delete records into provider calls. Every method
// receives the cycle's credentials explicitly.
//
// GoogleService implements both sides on top of the Google Calendar API. It
// is built once with a shared HTTP transport and fans each call out across
// the linked accounts of the caller:
//
//	svc := calendar.NewGoogleService(calendar.GoogleConfig{
//		OAuth:   google.OAuthConfig(clientID, clientSecret),
//		Metrics: provider.Metrics(),
//	})
//	events, err := svc.ReadSchedule(ctx, creds, action.DayWindow(time.Now()))
//
// Provider errors are mapped onto ErrNotFound, ErrUpstreamUnavailable and
// auth.ErrUnauthenticated so callers can apply one failure policy.
package calendar
