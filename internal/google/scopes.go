package google

import (
	calendar "google.golang.org/api/calendar/v3"
)

// Scopes are requested on login. Calendar is the only API noon talks to;
// the email scope names the linked account.
var Scopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	calendar.CalendarScope,
}
