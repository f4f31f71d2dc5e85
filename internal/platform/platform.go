// Package platform holds the narrow interfaces through which the assistant
// consumes its chat host: inbound event shape, outbound delivery, and roster
// lookup. Message delivery, typing indicators and attachments live on the
// other side of these interfaces.
package platform

import (
	"context"
	"errors"

	"teamassist/internal/models"
)

const (
	ConversationPersonal = "personal"
	ConversationGroup    = "group"
)

// InboundEvent is one user message delivered by the chat host.
type InboundEvent struct {
	ConversationID   string `json:"conversation_id"`
	ConversationType string `json:"conversation_type"`
	SenderID         string `json:"sender_id"`
	SenderName       string `json:"sender_name"`
	Text             string `json:"text"`
	// Timezone is the sender's IANA timezone identifier when the host knows
	// it; empty means UTC.
	Timezone   string `json:"timezone,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`
	// Participants is the roster when the host includes it inline; otherwise
	// the roster lookup is consulted.
	Participants []models.Participant `json:"participants,omitempty"`
}

// IsPersonal reports whether the event belongs to a 1:1 conversation.
func (e InboundEvent) IsPersonal() bool {
	return e.ConversationType == ConversationPersonal
}

// OutboundMessage is a composed reply handed back to the chat host.
type OutboundMessage struct {
	ConversationID string              `json:"conversation_id"`
	Text           string              `json:"text"`
	Citations      []models.Citation   `json:"citations,omitempty"`
	Cards          []models.QuotedCard `json:"cards,omitempty"`
}

// Transport delivers an outbound message and returns the activity id the host
// assigned to it.
type Transport interface {
	Send(ctx context.Context, msg OutboundMessage) (string, error)
}

// Roster looks up the participants of a group conversation. Only some inbound
// contexts have one available.
type Roster interface {
	ListParticipants(ctx context.Context, conversationID string) ([]models.Participant, error)
}

// StaticRoster serves rosters from configuration, for deployments whose host
// offers no roster API and for tests.
type StaticRoster struct {
	Rosters map[string][]models.Participant
}

func (r *StaticRoster) ListParticipants(_ context.Context, conversationID string) ([]models.Participant, error) {
	if r == nil || r.Rosters == nil {
		return nil, errors.New("no roster configured")
	}
	members, ok := r.Rosters[conversationID]
	if !ok {
		return nil, errors.New("no roster for conversation")
	}
	return members, nil
}
