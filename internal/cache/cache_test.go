package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory()
	m.Set("k", []byte("v"), time.Minute)

	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestMemory_NeverServesPastTTL(t *testing.T) {
	m := NewMemory()
	m.Set("k", []byte("v"), 10*time.Millisecond)

	_, ok := m.Get("k")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = m.Get("k")
	assert.False(t, ok)
}

func TestMemory_Delete(t *testing.T) {
	m := NewMemory()
	m.Set("k", []byte("v"), time.Minute)
	m.Delete("k")

	_, ok := m.Get("k")
	assert.False(t, ok)

	// deleting an absent key is a no-op
	m.Delete("missing")
}

func TestMemory_Sweep(t *testing.T) {
	m := NewMemory()
	m.Set("stale", []byte("v"), 5*time.Millisecond)
	m.Set("live", []byte("v"), time.Minute)

	time.Sleep(10 * time.Millisecond)
	m.Sweep()

	assert.Equal(t, 1, m.Len())
	_, ok := m.Get("live")
	assert.True(t, ok)
}

func TestMemory_ZeroTTLNotStored(t *testing.T) {
	m := NewMemory()
	m.Set("k", []byte("v"), 0)

	_, ok := m.Get("k")
	assert.False(t, ok)
}

func TestReplyKey(t *testing.T) {
	a := ReplyKey("conv-1", "hello")
	b := ReplyKey("conv-1", "hello")
	assert.Equal(t, a, b, "same input fingerprints identically")

	assert.NotEqual(t, a, ReplyKey("conv-2", "hello"), "conversation scopes the key")
	assert.NotEqual(t, a, ReplyKey("conv-1", "other"), "message text scopes the key")
	assert.Contains(t, a, "conv-1")
}

func TestInvalidator_ConversationChanged(t *testing.T) {
	m := NewMemory()
	m.Set(ConversationListKey("u1"), []byte("list"), time.Minute)
	m.Set(ConversationDetailKey("c1"), []byte("detail"), time.Minute)
	m.Set(MessageWindowKey("c1"), []byte("window"), time.Minute)
	m.Set(DashboardKey("u1"), []byte("dash"), time.Minute)

	NewInvalidator(m, zap.NewNop()).ConversationChanged("u1", "c1")

	_, ok := m.Get(ConversationListKey("u1"))
	assert.False(t, ok)
	_, ok = m.Get(ConversationDetailKey("c1"))
	assert.False(t, ok)
	_, ok = m.Get(MessageWindowKey("c1"))
	assert.False(t, ok)

	// unrelated views survive
	_, ok = m.Get(DashboardKey("u1"))
	assert.True(t, ok)
}

func TestInvalidator_AssessmentsChanged(t *testing.T) {
	m := NewMemory()
	m.Set(DashboardKey("u1"), []byte("dash"), time.Minute)
	m.Set(RecentAssessmentsKey("u1"), []byte("recent"), time.Minute)
	m.Set(ConversationListKey("u1"), []byte("list"), time.Minute)

	NewInvalidator(m, zap.NewNop()).AssessmentsChanged("u1")

	_, ok := m.Get(DashboardKey("u1"))
	assert.False(t, ok)
	_, ok = m.Get(RecentAssessmentsKey("u1"))
	assert.False(t, ok)
	_, ok = m.Get(ConversationListKey("u1"))
	assert.True(t, ok)
}
