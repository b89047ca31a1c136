package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	rules []Rule
	err   error
	calls int
}

func (f *fakeStore) LoadEnabledRules(ctx context.Context) ([]Rule, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rules, nil
}

func TestCatalog_ReloadPublishesSnapshot(t *testing.T) {
	r1 := Rule{ID: uuid.New(), Name: "r1", Enabled: true}
	store := &fakeStore{rules: []Rule{r1}}
	cat := NewCatalog(store)

	require.NoError(t, cat.Reload(context.Background()))

	snap := cat.Current()
	require.Len(t, snap.Rules, 1)
	assert.Equal(t, r1, snap.Rules[r1.ID])
}

func TestCatalog_FailedReloadKeepsPreviousSnapshot(t *testing.T) {
	r1 := Rule{ID: uuid.New(), Name: "r1", Enabled: true}
	store := &fakeStore{rules: []Rule{r1}}
	cat := NewCatalog(store)
	require.NoError(t, cat.Reload(context.Background()))
	firstVersion := cat.Current().Version

	store.err = errors.New("connection refused")
	err := cat.Reload(context.Background())
	assert.Error(t, err)

	snap := cat.Current()
	assert.Equal(t, firstVersion, snap.Version, "snapshot must not change on a failed reload")
	require.Len(t, snap.Rules, 1)
}

func TestCatalog_DueForReload(t *testing.T) {
	store := &fakeStore{}
	cat := NewCatalog(store)

	assert.True(t, cat.DueForReload(time.Minute), "never-reloaded catalog is always due")

	require.NoError(t, cat.Reload(context.Background()))
	assert.False(t, cat.DueForReload(time.Hour))
	assert.True(t, cat.DueForReload(0))
}

func TestCatalog_CurrentNeverPartiallyBuilt(t *testing.T) {
	store := &fakeStore{rules: []Rule{{ID: uuid.New(), Enabled: true}, {ID: uuid.New(), Enabled: true}}}
	cat := NewCatalog(store)
	require.NoError(t, cat.Reload(context.Background()))
	assert.Len(t, cat.Current().Rules, 2)
}
