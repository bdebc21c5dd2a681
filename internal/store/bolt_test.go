package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProfile("u1")
	assert.ErrorIs(t, err, ErrNotFound)

	p := Profile{
		UserID:      "u1",
		FirstName:   "Budi",
		DateOfBirth: time.Date(1980, 3, 15, 0, 0, 0, 0, time.UTC),
		Sex:         "Laki-laki",
		Language:    "Indonesia",
	}
	require.NoError(t, s.SaveProfile(p))

	got, err := s.GetProfile("u1")
	require.NoError(t, err)
	assert.Equal(t, "Budi", got.FirstName)
	assert.Equal(t, "Indonesia", got.Language)
}

func TestProfileAge(t *testing.T) {
	p := Profile{DateOfBirth: time.Date(1980, 6, 1, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, 46, p.Age(time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 44, p.Age(time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, Profile{}.Age(time.Now()))
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)

	c1, err := s.CreateConversation("u1", "Pertama")
	require.NoError(t, err)
	c2, err := s.CreateConversation("u1", "Kedua")
	require.NoError(t, err)
	_, err = s.CreateConversation("u2", "Milik orang lain")
	require.NoError(t, err)

	// c1 becomes the most recently active
	_, err = s.AppendMessage(c1.ID, RoleUser, "halo")
	require.NoError(t, err)

	convs, err := s.ListConversations("u1")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, c1.ID, convs[0].ID, "most recently active first")
	assert.Equal(t, c2.ID, convs[1].ID)

	renamed, err := s.RenameConversation(c2.ID, "Judul Baru")
	require.NoError(t, err)
	assert.Equal(t, "Judul Baru", renamed.Title)
	assert.True(t, renamed.UpdatedAt.After(c2.UpdatedAt) || renamed.UpdatedAt.Equal(c2.UpdatedAt))

	require.NoError(t, s.DeleteConversation(c1.ID))
	_, err = s.GetConversation(c1.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, err := s.ListMessages(c1.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "messages go with the conversation")

	assert.ErrorIs(t, s.DeleteConversation(c1.ID), ErrNotFound)
	_, err = s.RenameConversation("nope", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendMessage_OrderAndWindow(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.CreateConversation("u1", "t")
	require.NoError(t, err)

	for _, text := range []string{"satu", "dua", "tiga", "empat"} {
		_, err := s.AppendMessage(conv.ID, RoleUser, text)
		require.NoError(t, err)
		_, err = s.AppendMessage(conv.ID, RoleModel, `{"reply_components":[{"kind":"paragraph","content":"balasan `+text+`"}]}`)
		require.NoError(t, err)
	}

	all, err := s.ListMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, all, 8)
	assert.Equal(t, "satu", all[0].Content, "oldest first")
	assert.Equal(t, RoleModel, all[7].Role)

	recent, err := s.RecentMessages(conv.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "empat", recent[1].Content)
	assert.Equal(t, RoleModel, recent[2].Role, "newest last")

	updated, err := s.GetConversation(conv.ID)
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(conv.CreatedAt) || updated.UpdatedAt.Equal(conv.CreatedAt))
}

func TestAppendMessage_MissingConversation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendMessage("nope", RoleUser, "halo")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssessments(t *testing.T) {
	s := newTestStore(t)

	for i, cat := range []string{"Rendah", "Sedang", "Tinggi", "Sedang"} {
		_, err := s.CreateAssessment("u1", float64(10+i), cat)
		require.NoError(t, err)
	}

	recent, err := s.RecentAssessments("u1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, 13.0, recent[0].RiskPercentage, "newest first")
	assert.Equal(t, 11.0, recent[2].RiskPercentage)

	all, err := s.RecentAssessments("u1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := s.RecentAssessments("nobody", 3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAssessmentReport(t *testing.T) {
	s := newTestStore(t)
	a, err := s.CreateAssessment("u1", 22.5, "Tinggi")
	require.NoError(t, err)

	report := json.RawMessage(`{"reply_components":[{"kind":"paragraph","content":"laporan"}]}`)
	require.NoError(t, s.SaveAssessmentReport("u1", a.ID, report))

	got, err := s.GetAssessment("u1", a.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(report), string(got.Report))

	assert.ErrorIs(t, s.SaveAssessmentReport("u1", "nope", report), ErrNotFound)
	assert.ErrorIs(t, s.SaveAssessmentReport("u2", a.ID, report), ErrNotFound)
	_, err = s.GetAssessment("u1", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
