package chat

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kardiahealth/kardia/internal/store"
)

func testProfile() *store.Profile {
	return &store.Profile{
		UserID:      "u1",
		FirstName:   "Budi",
		DateOfBirth: time.Date(1980, 3, 15, 0, 0, 0, 0, time.UTC),
		Sex:         "Laki-laki",
		Language:    "Indonesia",
	}
}

func TestAssemble_NoProfile(t *testing.T) {
	asm := NewAssembler(&fakeStore{}, zap.NewNop())

	c := asm.Assemble("u1", "c1", "")

	assert.Equal(t, noProfileMarker, c.UserContext, "a missing profile never aborts assembly")
	assert.Empty(t, c.Language)
}

func TestAssemble_ProfileErrorDegrades(t *testing.T) {
	asm := NewAssembler(&fakeStore{profileErr: errors.New("db down")}, zap.NewNop())

	c := asm.Assemble("u1", "c1", "")

	assert.Equal(t, contextErrorMarker, c.UserContext)
}

func TestAssemble_ProfileAndAssessments(t *testing.T) {
	st := &fakeStore{
		profile: testProfile(),
		assessments: []store.RiskAssessment{
			{RiskPercentage: 22.5, RiskCategory: "Tinggi", CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)},
			{RiskPercentage: 15.0, RiskCategory: "Sedang", CreatedAt: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)},
		},
	}
	asm := NewAssembler(st, zap.NewNop())

	c := asm.Assemble("u1", "c1", "")

	assert.Contains(t, c.UserContext, "Budi")
	assert.Contains(t, c.UserContext, "tahun")
	assert.Contains(t, c.UserContext, "22.5% (Tinggi)")
	assert.Contains(t, c.UserContext, "1 Aug 2026")
	assert.Equal(t, "Indonesia", c.Language)
}

func TestAssemble_NoAssessments(t *testing.T) {
	asm := NewAssembler(&fakeStore{profile: testProfile()}, zap.NewNop())

	c := asm.Assemble("u1", "c1", "")

	assert.Contains(t, c.UserContext, noAssessmentsMarker)
}

func TestAssemble_HistoryReduction(t *testing.T) {
	st := &fakeStore{seeded: []store.Message{
		{ID: "1", ConversationID: "c1", Role: store.RoleUser, Content: "Halo"},
		{ID: "2", ConversationID: "c1", Role: store.RoleModel,
			Content: `{"reply_components":[{"kind":"paragraph","content":"Halo, Budi!"},{"kind":"list","items":["a"]}]}`},
		{ID: "3", ConversationID: "c1", Role: store.RoleModel, Content: "bukan json"},
	}}
	asm := NewAssembler(st, zap.NewNop())

	c := asm.Assemble("u1", "c1", "")

	require.Len(t, c.History, 3)
	assert.Equal(t, "Halo", c.History[0].Text)
	assert.Equal(t, "Halo, Budi!", c.History[1].Text, "model turns reduce to their first textual component")
	assert.Equal(t, structuredReplyLabel, c.History[2].Text, "unparseable model turns get the placeholder")
}

func TestAssemble_TruncatesLongHistoryEntries(t *testing.T) {
	st := &fakeStore{seeded: []store.Message{
		{ID: "1", ConversationID: "c1", Role: store.RoleUser, Content: strings.Repeat("p", 500)},
	}}
	asm := NewAssembler(st, zap.NewNop())

	c := asm.Assemble("u1", "c1", "")

	require.Len(t, c.History, 1)
	assert.Len(t, c.History[0].Text, historySnippetLimit+3)
	assert.True(t, strings.HasSuffix(c.History[0].Text, "..."))
}

func TestAssemble_WindowBoundAndExclusion(t *testing.T) {
	var seeded []store.Message
	for i := 0; i < 14; i++ {
		seeded = append(seeded, store.Message{
			ID:             fmt.Sprintf("%d", i),
			ConversationID: "c1",
			Role:           store.RoleUser,
			Content:        fmt.Sprintf("pesan %d", i),
		})
	}
	asm := NewAssembler(&fakeStore{seeded: seeded}, zap.NewNop())

	c := asm.Assemble("u1", "c1", "13")

	require.Len(t, c.History, DefaultMessageWindow)
	assert.Equal(t, "pesan 3", c.History[0].Text, "window keeps the newest, oldest first")
	assert.Equal(t, "pesan 12", c.History[len(c.History)-1].Text, "the just-persisted turn is excluded")
}
