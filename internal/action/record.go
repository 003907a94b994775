package action

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Metadata keys. The hyphenated names are part of the wire contract.
const (
	KeyEventID     = "event-id"
	KeyCalendarID  = "calendar-id"
	KeyStartDate   = "start-date"
	KeyEndDate     = "end-date"
	KeySummary     = "summary"
	KeyStart       = "start"
	KeyEnd         = "end"
	KeyDescription = "description"
	KeyLocation    = "location"
	KeyReason      = "reason"
)

// Metadata is the kind-dependent payload of a Record.
type Metadata map[string]any

// Record is the single terminal output of a resolution cycle.
type Record struct {
	Success  bool     `json:"success"`
	Request  Kind     `json:"request"`
	Metadata Metadata `json:"metadata"`
}

// ShowEvent describes displaying one existing event.
func ShowEvent(ref EventRef) (Record, error) {
	if err := ref.Validate(); err != nil {
		return Record{}, err
	}
	return Record{
		Success:  true,
		Request:  KindShowEvent,
		Metadata: refMetadata(ref),
	}, nil
}

// ShowSchedule describes displaying everything inside w.
func ShowSchedule(w TimeWindow) (Record, error) {
	if err := w.Validate(); err != nil {
		return Record{}, err
	}
	return Record{
		Success: true,
		Request: KindShowSchedule,
		Metadata: Metadata{
			KeyStartDate: w.Start.Format(time.RFC3339),
			KeyEndDate:   w.End.Format(time.RFC3339),
		},
	}, nil
}

// Draft is the content of an event to be created.
type Draft struct {
	CalendarID  string
	Summary     string
	Description string
	Location    string
	Timing      Timing
}

// CreateEvent describes creating a new event.
func CreateEvent(d Draft) (Record, error) {
	if strings.TrimSpace(d.Summary) == "" {
		return Record{}, fmt.Errorf("%w: summary", ErrMissingField)
	}
	if strings.TrimSpace(d.CalendarID) == "" {
		return Record{}, fmt.Errorf("%w: calendar-id", ErrMissingField)
	}
	if err := d.Timing.Validate(); err != nil {
		return Record{}, err
	}

	md := Metadata{
		KeySummary:    d.Summary,
		KeyCalendarID: d.CalendarID,
		KeyStart:      d.Timing.Start.Wire(),
		KeyEnd:        d.Timing.End.Wire(),
	}
	if d.Description != "" {
		md[KeyDescription] = d.Description
	}
	if d.Location != "" {
		md[KeyLocation] = d.Location
	}
	return Record{Success: true, Request: KindCreateEvent, Metadata: md}, nil
}

// Patch is a partial update of an existing event. Nil fields mean no change.
type Patch struct {
	Ref         EventRef
	Summary     *string
	Description *string
	Location    *string
	Start       *EventTime
	End         *EventTime
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Summary == nil && p.Description == nil && p.Location == nil && p.Start == nil && p.End == nil
}

// Validate checks the reference and the consistency of the new times.
func (p Patch) Validate() error {
	if err := p.Ref.Validate(); err != nil {
		return err
	}
	if p.Empty() {
		return ErrNoChanges
	}
	if p.Summary != nil && strings.TrimSpace(*p.Summary) == "" {
		return fmt.Errorf("%w: summary cannot be blanked", ErrMissingField)
	}
	if p.Start != nil && p.End != nil {
		return Timing{Start: *p.Start, End: *p.End}.Validate()
	}
	return nil
}

// UpdateEvent describes changing an existing event.
func UpdateEvent(p Patch) (Record, error) {
	if err := p.Validate(); err != nil {
		return Record{}, err
	}
	md := refMetadata(p.Ref)
	if p.Summary != nil {
		md[KeySummary] = *p.Summary
	}
	if p.Description != nil {
		md[KeyDescription] = *p.Description
	}
	if p.Location != nil {
		md[KeyLocation] = *p.Location
	}
	if p.Start != nil {
		md[KeyStart] = p.Start.Wire()
	}
	if p.End != nil {
		md[KeyEnd] = p.End.Wire()
	}
	return Record{Success: true, Request: KindUpdateEvent, Metadata: md}, nil
}

// DeleteEvent describes removing an existing event.
func DeleteEvent(ref EventRef) (Record, error) {
	if err := ref.Validate(); err != nil {
		return Record{}, err
	}
	return Record{
		Success:  true,
		Request:  KindDeleteEvent,
		Metadata: refMetadata(ref),
	}, nil
}

// NoAction describes declining to act. success=false is reserved for cycles
// that failed rather than ones that found nothing to do.
func NoAction(reason string, success bool) Record {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no action taken"
	}
	return Record{
		Success:  success,
		Request:  KindNoAction,
		Metadata: Metadata{KeyReason: reason},
	}
}

func refMetadata(ref EventRef) Metadata {
	return Metadata{
		KeyEventID:    ref.EventID,
		KeyCalendarID: ref.CalendarID,
	}
}

// Reason returns the no-action reason, or "" for other kinds.
func (r Record) Reason() string {
	s, _ := r.Metadata[KeyReason].(string)
	return s
}

// Ref extracts the event reference of show, update and delete records.
func (r Record) Ref() (EventRef, error) {
	eventID, _ := r.Metadata[KeyEventID].(string)
	calendarID, _ := r.Metadata[KeyCalendarID].(string)
	return NewEventRef(eventID, calendarID)
}

// Window extracts the window of a show-schedule record.
func (r Record) Window() (TimeWindow, error) {
	startStr, _ := r.Metadata[KeyStartDate].(string)
	endStr, _ := r.Metadata[KeyEndDate].(string)
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("%w: start-date %q", ErrInvalidWindow, startStr)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("%w: end-date %q", ErrInvalidWindow, endStr)
	}
	return NewTimeWindow(start, end)
}

// Draft reads a create-event record back into a Draft. loc resolves
// all-day dates.
func (r Record) Draft(loc *time.Location) (Draft, error) {
	if r.Request != KindCreateEvent {
		return Draft{}, fmt.Errorf("record is %s, not %s", r.Request, KindCreateEvent)
	}
	start, err := eventTimeFromWire(r.Metadata[KeyStart], loc)
	if err != nil {
		return Draft{}, fmt.Errorf("start: %w", err)
	}
	end, err := eventTimeFromWire(r.Metadata[KeyEnd], loc)
	if err != nil {
		return Draft{}, fmt.Errorf("end: %w", err)
	}
	d := Draft{
		CalendarID:  stringField(r.Metadata, KeyCalendarID),
		Summary:     stringField(r.Metadata, KeySummary),
		Description: stringField(r.Metadata, KeyDescription),
		Location:    stringField(r.Metadata, KeyLocation),
		Timing:      Timing{Start: start, End: end},
	}
	if _, err := CreateEvent(d); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// Patch reads an update-event record back into a Patch.
func (r Record) Patch(loc *time.Location) (Patch, error) {
	if r.Request != KindUpdateEvent {
		return Patch{}, fmt.Errorf("record is %s, not %s", r.Request, KindUpdateEvent)
	}
	ref, err := r.Ref()
	if err != nil {
		return Patch{}, err
	}
	p := Patch{Ref: ref}
	p.Summary = optionalString(r.Metadata, KeySummary)
	p.Description = optionalString(r.Metadata, KeyDescription)
	p.Location = optionalString(r.Metadata, KeyLocation)
	if v, ok := r.Metadata[KeyStart]; ok {
		t, err := eventTimeFromWire(v, loc)
		if err != nil {
			return Patch{}, fmt.Errorf("start: %w", err)
		}
		p.Start = &t
	}
	if v, ok := r.Metadata[KeyEnd]; ok {
		t, err := eventTimeFromWire(v, loc)
		if err != nil {
			return Patch{}, fmt.Errorf("end: %w", err)
		}
		p.End = &t
	}
	return p, p.Validate()
}

// JSON renders the record in its wire form.
func (r Record) JSON() ([]byte, error) {
	return json.Marshal(r)
}

func stringField(md Metadata, key string) string {
	s, _ := md[key].(string)
	return s
}

func optionalString(md Metadata, key string) *string {
	v, ok := md[key]
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}
