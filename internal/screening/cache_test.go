package screening

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	saved   *Result
	saves   int
	saveErr error
	loadErr error
}

func (m *memoryStore) Save(ctx context.Context, r *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = r
	return nil
}

func (m *memoryStore) Load(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved, m.loadErr
}

func sampleResult(name string, codes ...string) *Result {
	items := make([]Item, 0, len(codes))
	for _, c := range codes {
		items = append(items, Item{Code: c, Name: "종목" + c})
	}
	return &Result{ConditionName: name, Count: len(items), Items: items, RetrievedAt: testNow}
}

func TestCache_Empty(t *testing.T) {
	t.Parallel()
	c := NewCache(nil, nil)

	r, at, ok := c.Get()
	assert.False(t, ok)
	assert.Nil(t, r)
	assert.True(t, at.IsZero())

	_, _, ok = c.LastError()
	assert.False(t, ok)
}

func TestCache_SetPersists(t *testing.T) {
	t.Parallel()
	s := &memoryStore{}
	c := NewCache(s, nil)
	r1 := sampleResult("R1", "005930")

	c.Set(context.Background(), r1)

	got, at, ok := c.Get()
	require.True(t, ok)
	assert.Same(t, r1, got)
	assert.Equal(t, testNow, at)
	assert.Same(t, r1, s.saved)
}

func TestCache_FailureKeepsResult(t *testing.T) {
	t.Parallel()
	c := NewCache(nil, nil)
	r1 := sampleResult("R1", "005930")
	c.Set(context.Background(), r1)

	failedAt := testNow.Add(time.Minute)
	c.SetError("screener exited with code 1", failedAt)

	got, _, ok := c.Get()
	require.True(t, ok)
	assert.Same(t, r1, got)

	msg, at, ok := c.LastError()
	require.True(t, ok)
	assert.Equal(t, "screener exited with code 1", msg)
	assert.Equal(t, failedAt, at)
}

func TestCache_SuccessClearsError(t *testing.T) {
	t.Parallel()
	c := NewCache(nil, nil)
	c.SetError("boom", testNow)

	c.Set(context.Background(), sampleResult("R2"))

	_, _, ok := c.LastError()
	assert.False(t, ok)
}

func TestCache_PersistFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	s := &memoryStore{saveErr: errors.New("disk full")}
	c := NewCache(s, nil)
	r1 := sampleResult("R1", "1")

	c.Set(context.Background(), r1)

	got, _, ok := c.Get()
	require.True(t, ok)
	assert.Same(t, r1, got)
	assert.Equal(t, 1, s.saves)
}

func TestCache_Restore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "last_result.json")
	fileStore := store.NewJSONFile[Result](path)
	require.NoError(t, fileStore.Save(context.Background(), sampleResult("저장됨", "005930", "000660")))

	c := NewCache(fileStore, nil)
	require.NoError(t, c.Restore(context.Background()))

	got, at, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, "저장됨", got.ConditionName)
	assert.Equal(t, 2, got.Count)
	assert.True(t, at.Equal(testNow))
}

func TestCache_RestoreMissingFile(t *testing.T) {
	t.Parallel()
	c := NewCache(store.NewJSONFile[Result](filepath.Join(t.TempDir(), "none.json")), nil)

	require.NoError(t, c.Restore(context.Background()))
	_, _, ok := c.Get()
	assert.False(t, ok)
}

func TestCache_RestoreDoesNotOverwrite(t *testing.T) {
	t.Parallel()
	s := &memoryStore{saved: sampleResult("old")}
	c := NewCache(s, nil)
	fresh := sampleResult("fresh")
	c.result.Store(fresh)

	require.NoError(t, c.Restore(context.Background()))
	got, _, _ := c.Get()
	assert.Same(t, fresh, got)
}

func TestCache_RestoreError(t *testing.T) {
	t.Parallel()
	c := NewCache(&memoryStore{loadErr: errors.New("corrupt")}, nil)

	assert.Error(t, c.Restore(context.Background()))
}
