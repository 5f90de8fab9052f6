package activitymap

import (
	"context"
	"maps"
	"strings"
	"time"

	guard "github.com/goliatone/go-guard"
)

// Metadata keys folded in from the event fields.
const (
	MetadataKeyFromStatus = "from_status"
	MetadataKeyToStatus   = "to_status"
	MetadataKeyPath       = "path"
)

// Normalized is a transport-agnostic activity record for audit feeds.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Mapper turns guard activity events into Normalized records. Empty
// fields fall back to DefaultMapper values.
type Mapper struct {
	Channel    string
	ObjectType string
	// Actor is used for events without a user, e.g. anonymous redirects.
	Actor string
	// ObjectID overrides the object id, which is the request path for
	// guard redirects and the user id otherwise.
	ObjectID func(guard.ActivityEvent) string
	Now      func() time.Time
}

// DefaultMapper returns the mapper used by Normalize.
func DefaultMapper() Mapper {
	return Mapper{
		Channel:    "guard",
		ObjectType: "session",
		Actor:      "anonymous",
		Now:        time.Now,
	}
}

// Normalize maps event with DefaultMapper.
func Normalize(event guard.ActivityEvent) Normalized {
	return DefaultMapper().Map(event)
}

// Map converts event into a Normalized record. The event metadata is
// copied, never modified.
func (m Mapper) Map(event guard.ActivityEvent) Normalized {
	m = m.withDefaults()

	actor := strings.TrimSpace(event.UserID)
	if actor == "" {
		actor = m.Actor
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = m.Now().UTC()
	}

	return Normalized{
		ActorID:    actor,
		Verb:       string(event.EventType),
		ObjectType: m.ObjectType,
		ObjectID:   m.objectID(event),
		Channel:    m.Channel,
		Metadata:   foldMetadata(event),
		OccurredAt: occurredAt,
	}
}

// Sink adapts publish into a guard.ActivitySink that maps every event
// first. A nil publish discards events.
func (m Mapper) Sink(publish func(context.Context, Normalized) error) guard.ActivitySink {
	return guard.ActivitySinkFunc(func(ctx context.Context, event guard.ActivityEvent) error {
		if publish == nil {
			return nil
		}
		return publish(ctx, m.Map(event))
	})
}

func (m Mapper) withDefaults() Mapper {
	def := DefaultMapper()
	if m.Channel = strings.TrimSpace(m.Channel); m.Channel == "" {
		m.Channel = def.Channel
	}
	if m.ObjectType = strings.TrimSpace(m.ObjectType); m.ObjectType == "" {
		m.ObjectType = def.ObjectType
	}
	if m.Actor = strings.TrimSpace(m.Actor); m.Actor == "" {
		m.Actor = def.Actor
	}
	if m.Now == nil {
		m.Now = def.Now
	}
	return m
}

func (m Mapper) objectID(event guard.ActivityEvent) string {
	if m.ObjectID != nil {
		return strings.TrimSpace(m.ObjectID(event))
	}
	if event.EventType == guard.ActivityEventGuardRedirect && event.Path != "" {
		return event.Path
	}
	return strings.TrimSpace(event.UserID)
}

func foldMetadata(event guard.ActivityEvent) map[string]any {
	out := maps.Clone(event.Metadata)

	for key, value := range map[string]string{
		MetadataKeyFromStatus: string(event.FromStatus),
		MetadataKeyToStatus:   string(event.ToStatus),
		MetadataKeyPath:       event.Path,
	} {
		if value == "" {
			continue
		}
		if out == nil {
			out = make(map[string]any, 3)
		}
		out[key] = value
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
