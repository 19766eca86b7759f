package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tourney-pipeline/internal/models"
	"github.com/noah-isme/tourney-pipeline/internal/upstream"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type publishedMessage struct {
	topic   string
	meta    models.MessageMeta
	payload interface{}
}

type publisherStub struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (p *publisherStub) Publish(ctx context.Context, topic string, meta models.MessageMeta, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{topic: topic, meta: meta, payload: payload})
	return nil
}

func (p *publisherStub) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.messages))
	for i, m := range p.messages {
		out[i] = m.topic
	}
	return out
}

type reserverStub struct {
	deny      bool
	err       error
	completed map[models.ResourceType][]int64
	released  []int64
}

func newReserverStub() *reserverStub {
	return &reserverStub{completed: map[models.ResourceType][]int64{}}
}

func (r *reserverStub) TryReserve(ctx context.Context, t models.ResourceType, id int64) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return !r.deny, nil
}

func (r *reserverStub) MarkCompleted(ctx context.Context, t models.ResourceType, id int64) error {
	r.completed[t] = append(r.completed[t], id)
	return nil
}

func (r *reserverStub) MarkCompletedBatch(ctx context.Context, t models.ResourceType, ids []int64) error {
	r.completed[t] = append(r.completed[t], ids...)
	return nil
}

func (r *reserverStub) Release(ctx context.Context, t models.ResourceType, id int64) error {
	r.released = append(r.released, id)
	return nil
}

type upstreamStub struct {
	match      *upstream.Match
	matchErr   error
	beatmap    *upstream.Beatmap
	beatmapErr error
	set        *upstream.Beatmapset
	setErr     error
	users      map[string]*upstream.User
	userErr    error
	userModes  []string
}

func (u *upstreamStub) GetMatch(ctx context.Context, id int64) (*upstream.Match, error) {
	return u.match, u.matchErr
}

func (u *upstreamStub) GetBeatmap(ctx context.Context, id int64) (*upstream.Beatmap, error) {
	return u.beatmap, u.beatmapErr
}

func (u *upstreamStub) GetBeatmapset(ctx context.Context, id int64) (*upstream.Beatmapset, error) {
	return u.set, u.setErr
}

func (u *upstreamStub) GetUser(ctx context.Context, id int64, ruleset models.Ruleset) (*upstream.User, error) {
	u.userModes = append(u.userModes, ruleset.APIName())
	if u.userErr != nil {
		return nil, u.userErr
	}
	return u.users[ruleset.APIName()], nil
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }
