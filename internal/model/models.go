package model

import (
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Collection names a logical record set shared by both backends.
type Collection string

const (
	CollectionUser     Collection = "User"
	CollectionRun      Collection = "Run"
	CollectionEvent    Collection = "Event"
	CollectionComment  Collection = "Comment"
	CollectionMember   Collection = "Member"
	CollectionActivity Collection = "Activity"
	CollectionGallery  Collection = "Gallery"
)

// Collections lists every known collection.
var Collections = []Collection{
	CollectionUser,
	CollectionRun,
	CollectionEvent,
	CollectionComment,
	CollectionMember,
	CollectionActivity,
	CollectionGallery,
}

// Field names used in document payloads.
const (
	FieldID              = "id"
	FieldCreatedAt       = "createdAt"
	FieldUpdatedAt       = "updatedAt"
	FieldDisplayName     = "displayName"
	FieldJoinedAt        = "joinedAt"
	FieldTotalDistance   = "totalDistance"
	FieldTotalRuns       = "totalRuns"
	FieldLastActivityAt  = "lastActivityAt"
	FieldAnonymous       = "anonymous"
	FieldUserID          = "userId"
	FieldUserName        = "userName"
	FieldDate            = "date"
	FieldDistance        = "distance"
	FieldDuration        = "duration"
	FieldFeeling         = "feeling"
	FieldPhotoRef        = "photoRef"
	FieldTitle           = "title"
	FieldLocation        = "location"
	FieldSchedule        = "schedule"
	FieldDescription     = "description"
	FieldParticipants    = "participants"
	FieldMaxParticipants = "maxParticipants"
	FieldRunID           = "runId"
	FieldText            = "text"
)

// User is a club member. Totals are derived from the user's runs.
type User struct {
	ID             string    `json:"id"`
	DisplayName    string    `json:"displayName"`
	JoinedAt       time.Time `json:"joinedAt"`
	TotalDistance  float64   `json:"totalDistance"`
	TotalRuns      int       `json:"totalRuns"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	Anonymous      bool      `json:"anonymous"`
}

// Fields returns the persisted payload of u without its identity.
func (u User) Fields() map[string]any {
	f := map[string]any{
		FieldDisplayName:   u.DisplayName,
		FieldJoinedAt:      u.JoinedAt,
		FieldTotalDistance: u.TotalDistance,
		FieldTotalRuns:     u.TotalRuns,
		FieldAnonymous:     u.Anonymous,
	}
	if !u.LastActivityAt.IsZero() {
		f[FieldLastActivityAt] = u.LastActivityAt
	}
	return f
}

// Run is one logged run. Runs are immutable once created.
type Run struct {
	ID        string
	UserID    string
	UserName  string
	Date      string // YYYY-MM-DD
	Distance  float64
	Duration  float64
	Feeling   string
	PhotoRef  string
	CreatedAt time.Time
}

// Fields returns the persisted payload of r without its identity.
func (r Run) Fields() map[string]any {
	f := map[string]any{
		FieldUserID:   r.UserID,
		FieldUserName: r.UserName,
		FieldDate:     r.Date,
		FieldDistance: r.Distance,
		FieldDuration: r.Duration,
		FieldFeeling:  r.Feeling,
	}
	if r.PhotoRef != "" {
		f[FieldPhotoRef] = r.PhotoRef
	}
	return f
}

// Event is a scheduled group run with a bounded roster.
type Event struct {
	ID              string
	Title           string
	Location        string
	Schedule        string
	Description     string
	Participants    []string
	MaxParticipants int
	CreatedAt       time.Time
}

// HasParticipant reports whether userID is on the roster.
func (e Event) HasParticipant(userID string) bool {
	for _, p := range e.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Full reports whether the roster has reached capacity.
func (e Event) Full() bool {
	return len(e.Participants) >= e.MaxParticipants
}

// Fields returns the persisted payload of e without its identity.
func (e Event) Fields() map[string]any {
	participants := make([]string, len(e.Participants))
	copy(participants, e.Participants)
	return map[string]any{
		FieldTitle:           e.Title,
		FieldLocation:        e.Location,
		FieldSchedule:        e.Schedule,
		FieldDescription:     e.Description,
		FieldParticipants:    participants,
		FieldMaxParticipants: e.MaxParticipants,
	}
}

// Clone returns a copy of e that shares no roster storage with it.
func (e Event) Clone() Event {
	c := e
	c.Participants = make([]string, len(e.Participants))
	copy(c.Participants, e.Participants)
	return c
}

// Comment is a short text attached to a run.
type Comment struct {
	ID          string
	RunID       string
	UserID      string
	DisplayName string
	Text        string
	CreatedAt   time.Time
}

// Fields returns the persisted payload of c without its identity.
func (c Comment) Fields() map[string]any {
	return map[string]any{
		FieldRunID:       c.RunID,
		FieldUserID:      c.UserID,
		FieldDisplayName: c.DisplayName,
		FieldText:        c.Text,
	}
}

// UserFromDocument decodes a user, coercing loosely typed fields.
func UserFromDocument(d Document) User {
	return User{
		ID:             d.ID,
		DisplayName:    cast.ToString(d.Fields[FieldDisplayName]),
		JoinedAt:       timeOr(d.Fields[FieldJoinedAt], d.CreatedAt),
		TotalDistance:  cast.ToFloat64(d.Fields[FieldTotalDistance]),
		TotalRuns:      cast.ToInt(d.Fields[FieldTotalRuns]),
		LastActivityAt: timeOr(d.Fields[FieldLastActivityAt], time.Time{}),
		Anonymous:      cast.ToBool(d.Fields[FieldAnonymous]),
	}
}

// RunFromDocument decodes a run.
func RunFromDocument(d Document) Run {
	return Run{
		ID:        d.ID,
		UserID:    cast.ToString(d.Fields[FieldUserID]),
		UserName:  cast.ToString(d.Fields[FieldUserName]),
		Date:      cast.ToString(d.Fields[FieldDate]),
		Distance:  cast.ToFloat64(d.Fields[FieldDistance]),
		Duration:  cast.ToFloat64(d.Fields[FieldDuration]),
		Feeling:   cast.ToString(d.Fields[FieldFeeling]),
		PhotoRef:  cast.ToString(d.Fields[FieldPhotoRef]),
		CreatedAt: d.CreatedAt,
	}
}

// EventFromDocument decodes an event. A missing roster decodes as empty.
func EventFromDocument(d Document) Event {
	participants, err := cast.ToStringSliceE(d.Fields[FieldParticipants])
	if err != nil || participants == nil {
		participants = []string{}
	}
	return Event{
		ID:              d.ID,
		Title:           cast.ToString(d.Fields[FieldTitle]),
		Location:        cast.ToString(d.Fields[FieldLocation]),
		Schedule:        cast.ToString(d.Fields[FieldSchedule]),
		Description:     cast.ToString(d.Fields[FieldDescription]),
		Participants:    participants,
		MaxParticipants: cast.ToInt(d.Fields[FieldMaxParticipants]),
		CreatedAt:       d.CreatedAt,
	}
}

// CommentFromDocument decodes a comment.
func CommentFromDocument(d Document) Comment {
	return Comment{
		ID:          d.ID,
		RunID:       cast.ToString(d.Fields[FieldRunID]),
		UserID:      cast.ToString(d.Fields[FieldUserID]),
		DisplayName: cast.ToString(d.Fields[FieldDisplayName]),
		Text:        cast.ToString(d.Fields[FieldText]),
		CreatedAt:   d.CreatedAt,
	}
}

// ShortID returns the last four characters of id, or id itself when shorter.
func ShortID(id string) string {
	if len(id) <= 4 {
		return id
	}
	return id[len(id)-4:]
}

// SplitSchedule splits "Saturdays 07:00" into its day and time parts.
func SplitSchedule(schedule string) (day, at string) {
	day, at, _ = strings.Cut(strings.TrimSpace(schedule), " ")
	return day, strings.TrimSpace(at)
}

func timeOr(v any, fallback time.Time) time.Time {
	if v == nil {
		return fallback
	}
	t, err := cast.ToTimeE(v)
	if err != nil || t.IsZero() {
		return fallback
	}
	return t
}
