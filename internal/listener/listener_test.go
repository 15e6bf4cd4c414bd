package listener

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/store/memory"
	"github.com/resalt-bridge/resalt/internal/upstream/sse"
)

func newTestListener() (*Listener, *memory.Store) {
	s := memory.New()
	return New(nil, s, "secret"), s
}

func feed(l *Listener, tag, data string) {
	l.handleEvent(context.Background(), sse.Event{Tag: tag, Data: data})
}

func TestJobNewCreatesEventAndJob(t *testing.T) {
	l, s := newTestListener()
	ctx := context.Background()

	feed(l, "salt/job/20240101000000000000/new",
		`{"data": {"_stamp": "2024-01-01T00:00:00.000000", "user": "operator", "jid": "20240101000000000000"}}`)

	events, err := s.ListEvents(ctx, model.Paginate{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "salt/job/20240101000000000000/new", events[0].Tag)

	job, err := s.GetJobByJid(ctx, "20240101000000000000")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NotNil(t, job.User)
	assert.Equal(t, "operator", *job.User)
	require.NotNil(t, job.EventID)
	assert.Equal(t, events[0].ID, *job.EventID)
}

func TestJobReturnRecordsReturnRow(t *testing.T) {
	l, s := newTestListener()
	ctx := context.Background()

	feed(l, "salt/job/42/new", `{"data": {"_stamp": "2024-01-01T00:00:00.000000", "user": "op"}}`)
	feed(l, "salt/job/42/ret/web-01",
		`{"data": {"_stamp": "2024-01-01T00:00:05.000000", "fun": "test.ping", "id": "web-01", "return": true}}`)

	returns, err := s.ListJobReturnsByJid(ctx, "42")
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.Equal(t, "web-01", returns[0].MinionID)
	assert.Equal(t, "42", returns[0].Jid)
}

func TestConformityClassification(t *testing.T) {
	l, s := newTestListener()
	ctx := context.Background()

	feed(l, "salt/job/1/ret/m1", `{"data": {
		"_stamp": "2024-01-01T00:00:00.0",
		"fun": "state.highstate",
		"fun_args": [],
		"retcode": 0,
		"id": "m1",
		"return": {"a": {"result": true}, "b": {"result": false}, "c": {"result": null}}
	}}`)

	minion, err := s.GetMinion(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, minion)
	require.NotNil(t, minion.ConformitySuccess)
	assert.Equal(t, int32(1), *minion.ConformitySuccess)
	assert.Equal(t, int32(1), *minion.ConformityIncorrect)
	assert.Equal(t, int32(1), *minion.ConformityError)

	want, _ := time.Parse("2006-01-02T15:04:05.999999", "2024-01-01T00:00:00.0")
	require.NotNil(t, minion.LastUpdatedConformity)
	assert.True(t, minion.LastUpdatedConformity.Equal(want))
}

func TestConformitySkipsTargetedApplyAndFailedRuns(t *testing.T) {
	l, s := newTestListener()
	ctx := context.Background()

	// A state.apply with a concrete state argument is not a conformity run.
	feed(l, "salt/job/2/ret/m2", `{"data": {
		"_stamp": "2024-01-01T00:00:00.0", "fun": "state.apply",
		"fun_args": ["nginx"], "retcode": 0, "id": "m2",
		"return": {"a": {"result": true}}
	}}`)
	minion, err := s.GetMinion(ctx, "m2")
	require.NoError(t, err)
	if minion != nil {
		assert.Nil(t, minion.Conformity)
	}

	// retcode 1 is skipped outright.
	feed(l, "salt/job/3/ret/m3", `{"data": {
		"_stamp": "2024-01-01T00:00:00.0", "fun": "state.highstate",
		"fun_args": [], "retcode": 1, "id": "m3",
		"return": {"a": {"result": true}}
	}}`)
	minion, err = s.GetMinion(ctx, "m3")
	require.NoError(t, err)
	if minion != nil {
		assert.Nil(t, minion.Conformity)
	}

	// test=True in both encodings still counts as conformity.
	feed(l, "salt/job/4/ret/m4", `{"data": {
		"_stamp": "2024-01-01T00:00:00.0", "fun": "state.apply",
		"fun_args": ["test=True"], "retcode": 0, "id": "m4",
		"return": {"a": {"result": true}}
	}}`)
	minion, err = s.GetMinion(ctx, "m4")
	require.NoError(t, err)
	require.NotNil(t, minion)
	assert.NotNil(t, minion.Conformity)

	feed(l, "salt/job/5/ret/m5", `{"data": {
		"_stamp": "2024-01-01T00:00:00.0", "fun": "state.highstate",
		"fun_args": [{"test": true}], "retcode": 0, "id": "m5",
		"return": {"a": {"result": true}}
	}}`)
	minion, err = s.GetMinion(ctx, "m5")
	require.NoError(t, err)
	require.NotNil(t, minion)
	assert.NotNil(t, minion.Conformity)
}

func TestGrainsDeriveOSType(t *testing.T) {
	l, s := newTestListener()
	ctx := context.Background()

	feed(l, "salt/job/6/ret/m6", `{"data": {
		"_stamp": "2024-01-01T00:00:00.0", "fun": "grains.items", "id": "m6",
		"return": {"osfullname": "Debian", "osrelease": "12", "kernel": "Linux"}
	}}`)

	minion, err := s.GetMinion(ctx, "m6")
	require.NoError(t, err)
	require.NotNil(t, minion)
	require.NotNil(t, minion.OSType)
	assert.Equal(t, "Debian 12", *minion.OSType)
	require.NotNil(t, minion.Grains)
	assert.Contains(t, *minion.Grains, "osfullname")
	require.NotNil(t, minion.LastUpdatedGrains)
}

func TestPillarsAndPkgsUpserts(t *testing.T) {
	l, s := newTestListener()
	ctx := context.Background()

	feed(l, "salt/job/7/ret/m7", `{"data": {
		"_stamp": "2024-01-01T00:00:00.0", "fun": "pillar.items", "id": "m7",
		"return": {"role": "web"}
	}}`)
	feed(l, "salt/job/8/ret/m7", `{"data": {
		"_stamp": "2024-01-01T00:00:01.0", "fun": "pkg.list_pkgs", "id": "m7",
		"return": {"nginx": "1.24.0"}
	}}`)

	minion, err := s.GetMinion(ctx, "m7")
	require.NoError(t, err)
	require.NotNil(t, minion)
	require.NotNil(t, minion.Pillars)
	assert.Contains(t, *minion.Pillars, "role")
	require.NotNil(t, minion.Pkgs)
	assert.Contains(t, *minion.Pkgs, "nginx")
}

func TestAuthEventUpdatesLastSeen(t *testing.T) {
	l, s := newTestListener()
	ctx := context.Background()

	feed(l, "salt/auth", `{"data": {"_stamp": "2024-01-01T00:00:00.0", "result": true, "id": "m8"}}`)
	minion, err := s.GetMinion(ctx, "m8")
	require.NoError(t, err)
	require.NotNil(t, minion)

	feed(l, "salt/auth", `{"data": {"_stamp": "2024-01-01T00:00:00.0", "result": false, "id": "m9"}}`)
	minion, err = s.GetMinion(ctx, "m9")
	require.NoError(t, err)
	assert.Nil(t, minion, "failed auth does not create the minion")
}

// Replaying the same events appends to the event log but leaves jobs and
// minion state identical.
func TestReplayIdempotency(t *testing.T) {
	l, s := newTestListener()
	ctx := context.Background()

	jobNew := `{"data": {"_stamp": "2024-01-01T00:00:00.0", "user": "op"}}`
	grains := `{"data": {
		"_stamp": "2024-01-01T00:00:01.0", "fun": "grains.items", "id": "m1",
		"return": {"osfullname": "Debian", "osrelease": "12"}
	}}`

	for i := 0; i < 2; i++ {
		feed(l, "salt/job/77/new", jobNew)
		feed(l, "salt/job/77/ret/m1", grains)
	}

	count, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count, "events are append-only")

	jobs, err := s.ListJobs(ctx, nil, model.Sort(""), model.Paginate{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "same jid overwrites")

	minion, err := s.GetMinion(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, minion)
	assert.Equal(t, "Debian 12", *minion.OSType)
}

func TestOutOfOrderStampDoesNotRegress(t *testing.T) {
	l, s := newTestListener()
	ctx := context.Background()

	feed(l, "salt/job/9/ret/m1", `{"data": {
		"_stamp": "2024-01-02T00:00:00.0", "fun": "pillar.items", "id": "m1",
		"return": {"v": "new"}
	}}`)
	feed(l, "salt/job/10/ret/m1", `{"data": {
		"_stamp": "2024-01-01T00:00:00.0", "fun": "pillar.items", "id": "m1",
		"return": {"v": "stale"}
	}}`)

	minion, err := s.GetMinion(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, minion)
	assert.Contains(t, *minion.Pillars, "new", "older stamp must not overwrite newer data")
}

func TestMalformedEventsAreSkipped(t *testing.T) {
	l, s := newTestListener()
	ctx := context.Background()

	feed(l, "salt/job/11/new", `not json at all`)
	feed(l, "salt/job/12/new", `{"data": {"no_stamp": true}}`)
	feed(l, "salt/job/13/new", `{"data": {"_stamp": "not-a-time"}}`)

	count, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
