package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

func TestBeatmapRepositoryEnsureStubs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBeatmapRepository(db)

	osuIDs := []int64{900, 901}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO beatmaps (osu_id, has_data, fetch_status)")).
		WithArgs(pq.Array(osuIDs), models.FetchStatusNotFetched).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, osu_id, fetch_status FROM beatmaps WHERE osu_id = ANY($1)")).
		WithArgs(pq.Array(osuIDs)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "osu_id", "fetch_status"}).
			AddRow(1, 900, int64(models.FetchStatusFetched)).
			AddRow(2, 901, int64(models.FetchStatusNotFetched)))

	states, err := repo.EnsureStubs(context.Background(), nil, osuIDs)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, models.FetchStatusFetched, states[0].FetchStatus)
	assert.Equal(t, int64(901), states[1].OsuID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeatmapRepositoryEnsureStubsEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBeatmapRepository(db)

	states, err := repo.EnsureStubs(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, states)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeatmapRepositoryMarkNoData(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBeatmapRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE beatmaps SET has_data = FALSE WHERE osu_id = ANY($1) RETURNING id")).
		WithArgs(pq.Array([]int64{900})).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	ids, err := repo.MarkNoData(context.Background(), []int64{900})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestBeatmapRepositoryUpdateFetchStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBeatmapRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE beatmaps SET fetch_status = $1 WHERE id = ANY($2)")).
		WithArgs(models.FetchStatusNotFound, pq.Array([]int64{1, 2})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.UpdateFetchStatus(context.Background(), []int64{1, 2}, models.FetchStatusNotFound))
	require.NoError(t, repo.UpdateFetchStatus(context.Background(), nil, models.FetchStatusNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeatmapRepositoryUpsertBeatmapset(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBeatmapRepository(db)

	set := &models.Beatmapset{
		OsuID:   300,
		HasData: true,
		Artist:  "xi",
		Title:   "FREEDOM DiVE",
		Beatmaps: []models.Beatmap{
			{OsuID: 900, HasData: true, FetchStatus: models.FetchStatusFetched, DiffName: "FOUR DIMENSIONS"},
			{OsuID: 901, HasData: true, FetchStatus: models.FetchStatusFetched, DiffName: "Another"},
		},
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO beatmapsets")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO beatmaps (osu_id, beatmapset_id")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO beatmaps (osu_id, beatmapset_id")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

	require.NoError(t, repo.UpsertBeatmapset(context.Background(), nil, set))
	assert.Equal(t, int64(30), set.ID)
	assert.Equal(t, int64(1), set.Beatmaps[0].ID)
	assert.Equal(t, int64(2), set.Beatmaps[1].ID)
	require.NotNil(t, set.Beatmaps[1].BeatmapsetID)
	assert.Equal(t, int64(30), *set.Beatmaps[1].BeatmapsetID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
