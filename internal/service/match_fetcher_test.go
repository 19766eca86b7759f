package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tourney-pipeline/internal/messaging"
	"github.com/noah-isme/tourney-pipeline/internal/models"
	"github.com/noah-isme/tourney-pipeline/internal/upstream"
)

type matchFetchStoreStub struct {
	match     *models.Match
	findErr   error
	upsertErr error
	games     []models.Game
	scores    []models.Score
	cascaded  []models.Game
}

func (m *matchFetchStoreStub) FindByOsuID(ctx context.Context, osuID int64) (*models.Match, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.match, nil
}

func (m *matchFetchStoreStub) UpdateDetails(ctx context.Context, exec sqlx.ExtContext, match *models.Match) error {
	return nil
}

func (m *matchFetchStoreStub) UpsertGames(ctx context.Context, exec sqlx.ExtContext, games []models.Game) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for i := range games {
		games[i].ID = int64(100 + i)
		for j := range games[i].Scores {
			games[i].Scores[j].GameID = games[i].ID
		}
	}
	m.games = games
	return nil
}

func (m *matchFetchStoreStub) UpsertScores(ctx context.Context, exec sqlx.ExtContext, scores []models.Score) error {
	for i := range scores {
		scores[i].ID = int64(len(m.scores) + 1)
		m.scores = append(m.scores, scores[i])
	}
	return nil
}

func (m *matchFetchStoreStub) SaveCascade(ctx context.Context, exec sqlx.ExtContext, games []models.Game) error {
	m.cascaded = games
	return nil
}

type beatmapStubStoreStub struct {
	states []models.BeatmapFetchState
}

func (b *beatmapStubStoreStub) EnsureStubs(ctx context.Context, exec sqlx.ExtContext, osuIDs []int64) ([]models.BeatmapFetchState, error) {
	return b.states, nil
}

type playerStubStoreStub struct {
	ids     map[int64]int64
	created []int64
}

func (p *playerStubStoreStub) EnsureStubs(ctx context.Context, exec sqlx.ExtContext, osuIDs []int64) (map[int64]int64, []int64, error) {
	return p.ids, p.created, nil
}

type matchTrackerStub struct {
	statuses []models.FetchStatus
}

func (m *matchTrackerStub) UpdateMatchFetchStatus(ctx context.Context, matchID int64, status models.FetchStatus) error {
	m.statuses = append(m.statuses, status)
	return nil
}

func upstreamScore(userID, value int64, team string) upstream.Score {
	score := upstream.Score{UserID: userID, Score: value, Mods: []string{"NF"}}
	score.Match.Team = team
	return score
}

func upstreamMatchFixture() *upstream.Match {
	return &upstream.Match{
		Match: upstream.MatchInfo{ID: 111, Name: "STT: (a) vs (b)"},
		Events: []upstream.MatchEvent{
			{ID: 1},
			{ID: 2, Game: &upstream.Game{
				ID: 5001, BeatmapID: int64Ptr(900), Mode: "osu", ScoringType: "scorev2", TeamType: "team-vs",
				Scores: []upstream.Score{upstreamScore(1, 500000, "red"), upstreamScore(2, 600000, "blue")},
			}},
		},
	}
}

type matchFetcherFixture struct {
	fetcher   *MatchFetcher
	client    *upstreamStub
	store     *matchFetchStoreStub
	tracker   *matchTrackerStub
	reserver  *reserverStub
	publisher *publisherStub
}

func newMatchFetcherFixture(t *testing.T, tx txProvider) *matchFetcherFixture {
	fx := &matchFetcherFixture{
		client:    &upstreamStub{match: upstreamMatchFixture()},
		store:     &matchFetchStoreStub{match: &models.Match{ID: 7, OsuID: 111, TournamentID: 1}},
		tracker:   &matchTrackerStub{},
		reserver:  newReserverStub(),
		publisher: &publisherStub{},
	}
	beatmaps := &beatmapStubStoreStub{states: []models.BeatmapFetchState{{ID: 50, OsuID: 900, FetchStatus: models.FetchStatusNotFetched}}}
	players := &playerStubStoreStub{ids: map[int64]int64{1: 11, 2: 12}, created: []int64{2}}
	fx.fetcher = NewMatchFetcher(fx.client, fx.store, beatmaps, players, fx.tracker, fx.reserver, fx.publisher, tx, nil, zap.NewNop())
	return fx
}

func TestMatchFetcherStoresGamesAndPublishesChildren(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	fx := newMatchFetcherFixture(t, tx)

	msg := models.FetchMatchMessage{MessageMeta: models.MessageMeta{CorrelationID: "corr-1", Priority: models.PriorityHigh}, OsuMatchID: 111}
	require.NoError(t, fx.fetcher.Fetch(context.Background(), msg))

	assert.Equal(t, []models.FetchStatus{models.FetchStatusFetching, models.FetchStatusFetched}, fx.tracker.statuses)
	require.Len(t, fx.store.games, 1)
	game := fx.store.games[0]
	require.NotNil(t, game.BeatmapID)
	assert.Equal(t, int64(50), *game.BeatmapID)
	assert.Equal(t, int64(7), game.MatchID)
	require.Len(t, game.Scores, 2)
	assert.Equal(t, int64(11), game.Scores[0].PlayerID)
	assert.Equal(t, 2, game.Scores[0].Placement)
	assert.Equal(t, 1, game.Scores[1].Placement)
	assert.Equal(t, int64(100), game.Scores[1].GameID)
	assert.Nil(t, fx.store.cascaded)
	assert.Equal(t, "STT: (a) vs (b)", fx.store.match.Name)

	assert.Equal(t, []string{messaging.TopicFetchPlayer, messaging.TopicFetchBeatmap}, fx.publisher.topics())
	player := fx.publisher.messages[0].payload.(models.FetchPlayerMessage)
	assert.Equal(t, int64(2), player.OsuPlayerID)
	assert.Equal(t, "corr-1", player.CorrelationID)
	assert.Equal(t, models.PriorityHigh, fx.publisher.messages[1].meta.Priority)

	assert.Equal(t, []int64{111}, fx.reserver.completed[models.ResourceMatch])
	assert.Empty(t, fx.reserver.released)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchFetcherCascadesRejectedMatchOntoNewChildren(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	fx := newMatchFetcherFixture(t, tx)
	fx.store.match.VerificationStatus = models.VerificationStatusRejected

	require.NoError(t, fx.fetcher.Fetch(context.Background(), models.FetchMatchMessage{OsuMatchID: 111}))

	require.Len(t, fx.store.cascaded, 1)
	game := fx.store.cascaded[0]
	assert.Equal(t, models.VerificationStatusRejected, game.VerificationStatus)
	assert.True(t, game.RejectionReason.Has(models.GameRejectionRejectedMatch))
	for _, score := range game.Scores {
		assert.Equal(t, models.VerificationStatusRejected, score.VerificationStatus)
		assert.True(t, score.RejectionReason.Has(models.ScoreRejectionRejectedGame))
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchFetcherNotFoundUpstream(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fx := newMatchFetcherFixture(t, tx)
	fx.client.match = nil

	require.NoError(t, fx.fetcher.Fetch(context.Background(), models.FetchMatchMessage{OsuMatchID: 111}))

	assert.Equal(t, []models.FetchStatus{models.FetchStatusFetching, models.FetchStatusNotFound}, fx.tracker.statuses)
	assert.Equal(t, []int64{111}, fx.reserver.completed[models.ResourceMatch])
	assert.Empty(t, fx.publisher.messages)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchFetcherUpstreamErrorMarksErrorAndReleases(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	fx := newMatchFetcherFixture(t, tx)
	fx.client.matchErr = fmt.Errorf("upstream unavailable")

	err := fx.fetcher.Fetch(context.Background(), models.FetchMatchMessage{OsuMatchID: 111})
	require.Error(t, err)

	assert.Equal(t, []models.FetchStatus{models.FetchStatusFetching, models.FetchStatusError}, fx.tracker.statuses)
	assert.Equal(t, []int64{111}, fx.reserver.released)
	assert.Empty(t, fx.reserver.completed[models.ResourceMatch])
}

func TestMatchFetcherErrorStatusSurvivesCancellation(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	fx := newMatchFetcherFixture(t, tx)
	ctx, cancel := context.WithCancel(context.Background())
	fx.client.matchErr = context.Canceled
	cancel()

	err := fx.fetcher.Fetch(ctx, models.FetchMatchMessage{OsuMatchID: 111})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.FetchStatusError, fx.tracker.statuses[len(fx.tracker.statuses)-1])
	assert.Equal(t, []int64{111}, fx.reserver.released)
}

func TestMatchFetcherRollsBackOnStoreError(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	fx := newMatchFetcherFixture(t, tx)
	fx.store.upsertErr = errors.New("constraint violated")

	err := fx.fetcher.Fetch(context.Background(), models.FetchMatchMessage{OsuMatchID: 111})
	require.Error(t, err)
	assert.Equal(t, []models.FetchStatus{models.FetchStatusFetching, models.FetchStatusError}, fx.tracker.statuses)
	assert.Empty(t, fx.publisher.messages)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchFetcherSkipsDuplicateReservation(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	fx := newMatchFetcherFixture(t, tx)
	fx.reserver.deny = true

	require.NoError(t, fx.fetcher.Fetch(context.Background(), models.FetchMatchMessage{OsuMatchID: 111}))
	assert.Empty(t, fx.tracker.statuses)
	assert.Empty(t, fx.reserver.released)
}

func TestMatchFetcherSkipsUnknownMatch(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	fx := newMatchFetcherFixture(t, tx)
	fx.store.findErr = fmt.Errorf("get match by osu id: %w", sql.ErrNoRows)

	require.NoError(t, fx.fetcher.Fetch(context.Background(), models.FetchMatchMessage{OsuMatchID: 111}))
	assert.Empty(t, fx.tracker.statuses)
	assert.Equal(t, []int64{111}, fx.reserver.released)
}
