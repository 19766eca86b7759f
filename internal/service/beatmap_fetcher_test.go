package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tourney-pipeline/internal/models"
	"github.com/noah-isme/tourney-pipeline/internal/upstream"
)

type beatmapFetchStoreStub struct {
	noData   []int64
	upserted *models.Beatmapset
}

func (b *beatmapFetchStoreStub) EnsureStubs(ctx context.Context, exec sqlx.ExtContext, osuIDs []int64) ([]models.BeatmapFetchState, error) {
	return []models.BeatmapFetchState{{ID: 50, OsuID: osuIDs[0], FetchStatus: models.FetchStatusNotFetched}}, nil
}

func (b *beatmapFetchStoreStub) MarkNoData(ctx context.Context, osuIDs []int64) ([]int64, error) {
	b.noData = append(b.noData, osuIDs...)
	return []int64{50}, nil
}

func (b *beatmapFetchStoreStub) UpsertBeatmapset(ctx context.Context, exec sqlx.ExtContext, set *models.Beatmapset) error {
	set.ID = 30
	for i := range set.Beatmaps {
		set.Beatmaps[i].ID = int64(50 + i)
		set.Beatmaps[i].BeatmapsetID = &set.ID
	}
	b.upserted = set
	return nil
}

type beatmapStatusCall struct {
	ids    []int64
	status models.FetchStatus
}

type beatmapTrackerStub struct {
	calls []beatmapStatusCall
}

func (b *beatmapTrackerStub) UpdateBeatmapFetchStatus(ctx context.Context, ids []int64, status models.FetchStatus) error {
	b.calls = append(b.calls, beatmapStatusCall{ids: ids, status: status})
	return nil
}

func TestBeatmapFetcherStoresWholeSet(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	client := &upstreamStub{
		beatmap: &upstream.Beatmap{ID: 900, BeatmapsetID: 300, Mode: "osu"},
		set: &upstream.Beatmapset{ID: 300, Title: "FREEDOM DiVE", Beatmaps: []upstream.Beatmap{
			{ID: 900, BeatmapsetID: 300, Mode: "osu", Version: "FOUR DIMENSIONS", MaxCombo: intPtr(2000)},
			{ID: 901, BeatmapsetID: 300, Mode: "osu", Version: "Another"},
		}},
	}
	store := &beatmapFetchStoreStub{}
	tracker := &beatmapTrackerStub{}
	reserver := newReserverStub()
	fetcher := NewBeatmapFetcher(client, store, tracker, reserver, tx, nil, zap.NewNop())

	require.NoError(t, fetcher.Fetch(context.Background(), models.FetchBeatmapMessage{OsuBeatmapID: 900}))

	require.NotNil(t, store.upserted)
	assert.Len(t, store.upserted.Beatmaps, 2)
	require.Len(t, tracker.calls, 2)
	assert.Equal(t, beatmapStatusCall{ids: []int64{50}, status: models.FetchStatusFetching}, tracker.calls[0])
	assert.Equal(t, beatmapStatusCall{ids: []int64{50, 51}, status: models.FetchStatusFetched}, tracker.calls[1])
	assert.Equal(t, []int64{900, 901}, reserver.completed[models.ResourceBeatmap])
	assert.Equal(t, []int64{300}, reserver.completed[models.ResourceBeatmapset])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeatmapFetcherNotFoundMarksNoData(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	store := &beatmapFetchStoreStub{}
	tracker := &beatmapTrackerStub{}
	reserver := newReserverStub()
	fetcher := NewBeatmapFetcher(&upstreamStub{}, store, tracker, reserver, tx, nil, zap.NewNop())

	require.NoError(t, fetcher.Fetch(context.Background(), models.FetchBeatmapMessage{OsuBeatmapID: 900}))

	assert.Equal(t, []int64{900}, store.noData)
	require.Len(t, tracker.calls, 2)
	assert.Equal(t, models.FetchStatusNotFound, tracker.calls[1].status)
	assert.Nil(t, store.upserted)
	assert.Equal(t, []int64{900}, reserver.completed[models.ResourceBeatmap])
}

func TestBeatmapFetcherErrorReleasesReservation(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	tracker := &beatmapTrackerStub{}
	reserver := newReserverStub()
	client := &upstreamStub{beatmapErr: errors.New("timeout")}
	fetcher := NewBeatmapFetcher(client, &beatmapFetchStoreStub{}, tracker, reserver, tx, nil, zap.NewNop())

	require.Error(t, fetcher.Fetch(context.Background(), models.FetchBeatmapMessage{OsuBeatmapID: 900}))
	assert.Equal(t, models.FetchStatusError, tracker.calls[len(tracker.calls)-1].status)
	assert.Equal(t, []int64{900}, reserver.released)
}

func TestBeatmapsetModelIncludesRequestedBeatmap(t *testing.T) {
	beatmap := &upstream.Beatmap{ID: 902, BeatmapsetID: 300, Mode: "taiko"}

	model := beatmapsetModel(beatmap, &upstream.Beatmapset{ID: 300, Beatmaps: []upstream.Beatmap{{ID: 900}}})
	require.Len(t, model.Beatmaps, 2)
	assert.Equal(t, int64(902), model.Beatmaps[1].OsuID)
	assert.True(t, model.HasData)

	orphan := beatmapsetModel(beatmap, nil)
	assert.False(t, orphan.HasData)
	assert.Equal(t, int64(300), orphan.OsuID)
	require.Len(t, orphan.Beatmaps, 1)
	assert.Equal(t, models.RulesetTaiko, orphan.Beatmaps[0].Ruleset)
}
