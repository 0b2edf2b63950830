package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	MinPollOptions = 2
	MaxPollOptions = 10
)

// PollStatus is the lifecycle state of a poll
type PollStatus string

const (
	PollStatusScheduled PollStatus = "SCHEDULED"
	PollStatusActive    PollStatus = "ACTIVE"
	PollStatusEnded     PollStatus = "ENDED"
)

// VoteAction describes what a vote request did
type VoteAction string

const (
	VoteAdded   VoteAction = "added"
	VoteRemoved VoteAction = "removed"
	VoteChanged VoteAction = "changed"
)

// Poll represents a poll entity in the system
// Maps to CockroachDB polls table
type Poll struct {
	PollID         uuid.UUID  `json:"poll_id" db:"poll_id"`
	ConversationID uuid.UUID  `json:"conversation_id" db:"conversation_id"`
	CreatorID      uuid.UUID  `json:"creator_id" db:"creator_id"`
	MessageID      uuid.UUID  `json:"message_id" db:"message_id"`
	Question       string     `json:"question" db:"question"`
	AllowMultiple  bool       `json:"allow_multiple" db:"allow_multiple"`
	IsAnonymous    bool       `json:"is_anonymous" db:"is_anonymous"`
	Status         PollStatus `json:"status" db:"status"`
	StartsAt       *time.Time `json:"starts_at,omitempty" db:"starts_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// EffectiveStatus is the single status rule shared by reads and writes.
// A stored ENDED always wins; otherwise the schedule decides.
func (p *Poll) EffectiveStatus(now time.Time) PollStatus {
	if p.Status == PollStatusEnded {
		return PollStatusEnded
	}
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return PollStatusEnded
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return PollStatusScheduled
	}
	return PollStatusActive
}

// PollOption represents an option in a poll
// Maps to CockroachDB poll_options table
type PollOption struct {
	OptionID uuid.UUID `json:"option_id" db:"option_id"`
	PollID   uuid.UUID `json:"poll_id" db:"poll_id"`
	Text     string    `json:"text" db:"text"`
	Position int       `json:"position" db:"position"`
}

// PollVote represents a vote in a poll
// Maps to CockroachDB poll_votes table
type PollVote struct {
	VoteID    uuid.UUID `json:"vote_id" db:"vote_id"`
	PollID    uuid.UUID `json:"poll_id" db:"poll_id"`
	OptionID  uuid.UUID `json:"option_id" db:"option_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PollCreate represents data needed to create a new poll
type PollCreate struct {
	Question      string     `json:"question" binding:"required,min=1,max=500"`
	Options       []string   `json:"options" binding:"required,min=2,max=10,dive,required,max=200"`
	AllowMultiple bool       `json:"allow_multiple"`
	IsAnonymous   bool       `json:"is_anonymous"`
	StartsAt      *time.Time `json:"starts_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

// OptionResult is the tally for one option
type OptionResult struct {
	OptionID   uuid.UUID   `json:"option_id"`
	Text       string      `json:"text"`
	Position   int         `json:"position"`
	VoteCount  int         `json:"vote_count"`
	Percentage float64     `json:"percentage"`
	UserVoted  bool        `json:"user_voted"`
	Voters     []uuid.UUID `json:"voters"` // nil when anonymous
}

// PollResults is the full tally of a poll as seen by one user
type PollResults struct {
	PollID      uuid.UUID      `json:"poll_id"`
	Status      PollStatus     `json:"status"`
	IsAnonymous bool           `json:"is_anonymous"`
	TotalVotes  int            `json:"total_votes"`
	Options     []OptionResult `json:"options"`
}

// TallyResults computes per-option counts for requestingUser.
// Voter ids are only exposed when the poll is not anonymous.
func TallyResults(poll *Poll, options []*PollOption, votes []*PollVote, requestingUser uuid.UUID, now time.Time) *PollResults {
	counts := make(map[uuid.UUID]int, len(options))
	voters := make(map[uuid.UUID][]uuid.UUID, len(options))
	mine := make(map[uuid.UUID]bool)

	for _, v := range votes {
		counts[v.OptionID]++
		voters[v.OptionID] = append(voters[v.OptionID], v.UserID)
		if v.UserID == requestingUser {
			mine[v.OptionID] = true
		}
	}

	results := &PollResults{
		PollID:      poll.PollID,
		Status:      poll.EffectiveStatus(now),
		IsAnonymous: poll.IsAnonymous,
		TotalVotes:  len(votes),
		Options:     make([]OptionResult, 0, len(options)),
	}

	for _, opt := range options {
		r := OptionResult{
			OptionID:  opt.OptionID,
			Text:      opt.Text,
			Position:  opt.Position,
			VoteCount: counts[opt.OptionID],
			UserVoted: mine[opt.OptionID],
		}
		if results.TotalVotes > 0 {
			r.Percentage = float64(r.VoteCount) / float64(results.TotalVotes) * 100
		}
		if !poll.IsAnonymous {
			r.Voters = append([]uuid.UUID{}, voters[opt.OptionID]...)
		}
		results.Options = append(results.Options, r)
	}

	sort.SliceStable(results.Options, func(i, j int) bool {
		return results.Options[i].Position < results.Options[j].Position
	})

	return results
}

// PollDetails is a poll with its tally as seen by one user. Status holds the
// effective status at read time.
type PollDetails struct {
	*Poll
	Results *PollResults `json:"results"`
}
