package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		poll Poll
		want PollStatus
	}{
		{"open-ended", Poll{Status: PollStatusActive}, PollStatusActive},
		{"stored ended", Poll{Status: PollStatusEnded, ExpiresAt: &future}, PollStatusEnded},
		{"expired", Poll{Status: PollStatusActive, ExpiresAt: &past}, PollStatusEnded},
		{"expires exactly now", Poll{Status: PollStatusActive, ExpiresAt: &now}, PollStatusEnded},
		{"not started", Poll{Status: PollStatusScheduled, StartsAt: &future}, PollStatusScheduled},
		{"start reached", Poll{Status: PollStatusScheduled, StartsAt: &past, ExpiresAt: &future}, PollStatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.poll.EffectiveStatus(now))
		})
	}
}

func TestTallyResults(t *testing.T) {
	now := time.Now()
	poll := &Poll{PollID: uuid.New(), Status: PollStatusActive}
	a := &PollOption{OptionID: uuid.New(), PollID: poll.PollID, Text: "A", Position: 0}
	b := &PollOption{OptionID: uuid.New(), PollID: poll.PollID, Text: "B", Position: 1}
	c := &PollOption{OptionID: uuid.New(), PollID: poll.PollID, Text: "C", Position: 2}
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()

	votes := []*PollVote{
		{PollID: poll.PollID, OptionID: a.OptionID, UserID: u1},
		{PollID: poll.PollID, OptionID: a.OptionID, UserID: u2},
		{PollID: poll.PollID, OptionID: b.OptionID, UserID: u3},
	}

	res := TallyResults(poll, []*PollOption{c, a, b}, votes, u1, now)
	require.Len(t, res.Options, 3)
	assert.Equal(t, 3, res.TotalVotes)
	assert.Equal(t, PollStatusActive, res.Status)

	assert.Equal(t, "A", res.Options[0].Text)
	assert.Equal(t, 2, res.Options[0].VoteCount)
	assert.Equal(t, float64(2)/float64(3)*100, res.Options[0].Percentage)
	assert.True(t, res.Options[0].UserVoted)
	assert.ElementsMatch(t, []uuid.UUID{u1, u2}, res.Options[0].Voters)

	assert.Equal(t, float64(1)/float64(3)*100, res.Options[1].Percentage)
	assert.InDelta(t, 100.0, res.Options[0].Percentage+res.Options[1].Percentage, 1e-9)
	assert.False(t, res.Options[1].UserVoted)

	assert.Equal(t, 0, res.Options[2].VoteCount)
	assert.Equal(t, 0.0, res.Options[2].Percentage)
	require.NotNil(t, res.Options[2].Voters)
	assert.Empty(t, res.Options[2].Voters)

	raw, err := json.Marshal(res.Options[2])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"voters":[]`)
}

func TestTallyResults_AnonymousHidesVoters(t *testing.T) {
	poll := &Poll{PollID: uuid.New(), IsAnonymous: true}
	opt := &PollOption{OptionID: uuid.New(), Text: "Yes"}
	u := uuid.New()

	res := TallyResults(poll, []*PollOption{opt}, []*PollVote{{OptionID: opt.OptionID, UserID: u}}, u, time.Now())
	require.Len(t, res.Options, 1)
	assert.Equal(t, 1, res.Options[0].VoteCount)
	assert.True(t, res.Options[0].UserVoted)
	assert.Nil(t, res.Options[0].Voters)
}

func TestTallyResults_NoVotes(t *testing.T) {
	poll := &Poll{PollID: uuid.New()}
	opts := []*PollOption{{OptionID: uuid.New()}, {OptionID: uuid.New(), Position: 1}}

	res := TallyResults(poll, opts, nil, uuid.New(), time.Now())
	for _, o := range res.Options {
		assert.Equal(t, 0.0, o.Percentage)
		assert.Equal(t, 0, o.VoteCount)
	}
}

func TestCallDurationSeconds(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 135, CallDurationSeconds(start, start.Add(2*time.Minute+15*time.Second+400*time.Millisecond)))
	assert.Equal(t, 0, CallDurationSeconds(start, start.Add(-time.Second)))
	assert.True(t, CallStatusDeclined.IsTerminal())
	assert.False(t, CallStatusOngoing.IsTerminal())
}
