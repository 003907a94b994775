package agent

import (
	"time"
)

// Query is one free-text request. Now is the reference instant for
// relative expressions ("tomorrow"); zero means the resolver's clock. A nil
// Location means Now's location.
type Query struct {
	Text     string
	Now      time.Time
	Location *time.Location
}

// normalize fills Now and Location and expresses Now in Location.
func (q Query) normalize(clock func() time.Time) Query {
	if q.Now.IsZero() {
		q.Now = clock()
	}
	if q.Location == nil {
		q.Location = q.Now.Location()
	}
	q.Now = q.Now.In(q.Location)
	return q
}
