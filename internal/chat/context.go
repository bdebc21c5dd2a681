package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kardiahealth/kardia/internal/ai"
	"github.com/kardiahealth/kardia/internal/reply"
	"github.com/kardiahealth/kardia/internal/store"
)

// Context assembly bounds.
const (
	DefaultMessageWindow    = 10
	DefaultAssessmentWindow = 3

	historySnippetLimit = 200
)

// Marker strings used when context pieces cannot be built. Context assembly
// never aborts the pipeline.
const (
	noProfileMarker      = "Pengguna ini belum melengkapi profilnya."
	contextErrorMarker   = "Terjadi kesalahan saat memuat konteks pengguna."
	noAssessmentsMarker  = "Pengguna ini belum pernah melakukan analisis risiko."
	structuredReplyLabel = "[Balasan terstruktur]"
)

// ContextStore is the read-only view of persisted entities the assembler
// needs.
type ContextStore interface {
	GetProfile(userID string) (*store.Profile, error)
	RecentMessages(conversationID string, limit int) ([]store.Message, error)
	RecentAssessments(userID string, limit int) ([]store.RiskAssessment, error)
}

// Context is the bounded package of user and conversation state fed to the
// prompt builder. Recomputed per request, never stored.
type Context struct {
	Language    string
	UserContext string
	History     []ai.Turn
}

// Assembler builds request contexts from the store. Read-only; failures
// degrade to marker text instead of propagating.
type Assembler struct {
	store           ContextStore
	log             *zap.Logger
	messageWindow   int
	assessmentCount int
}

func NewAssembler(st ContextStore, log *zap.Logger) *Assembler {
	return &Assembler{
		store:           st,
		log:             log,
		messageWindow:   DefaultMessageWindow,
		assessmentCount: DefaultAssessmentWindow,
	}
}

// Assemble builds the context for one reply. excludeMessageID skips the
// just-persisted user turn so it does not appear in the prior-message window
// as well as in the new question.
func (a *Assembler) Assemble(userID, conversationID, excludeMessageID string) *Context {
	c := &Context{
		UserContext: a.buildUserContext(userID),
		History:     a.buildHistory(conversationID, excludeMessageID),
	}
	if p, err := a.store.GetProfile(userID); err == nil && p.Language != "" {
		c.Language = p.Language
	}
	return c
}

func (a *Assembler) buildUserContext(userID string) string {
	profile, err := a.store.GetProfile(userID)
	if errors.Is(err, store.ErrNotFound) {
		return noProfileMarker
	}
	if err != nil {
		a.log.Error("loading profile for context", zap.String("user_id", userID), zap.Error(err))
		return contextErrorMarker
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PROFIL PENGGUNA:\n- Nama: %s\n- Usia Saat Ini: %d tahun\n- Jenis Kelamin: %s\n",
		profile.FirstName, profile.Age(time.Now()), profile.Sex)

	assessments, err := a.store.RecentAssessments(userID, a.assessmentCount)
	if err != nil {
		a.log.Error("loading assessments for context", zap.String("user_id", userID), zap.Error(err))
		return b.String()
	}
	if len(assessments) == 0 {
		b.WriteString("\n" + noAssessmentsMarker)
		return b.String()
	}

	fmt.Fprintf(&b, "\nRIWAYAT %d ANALISIS RISIKO TERAKHIR:\n", len(assessments))
	for _, s := range assessments {
		fmt.Fprintf(&b, "- %s: %.1f%% (%s)\n",
			s.CreatedAt.Format("2 Jan 2006"), s.RiskPercentage, s.RiskCategory)
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildHistory returns the prior-message window as plain-text turns, oldest
// first. Model turns are reduced to their first textual component to keep
// the context compact.
func (a *Assembler) buildHistory(conversationID, excludeMessageID string) []ai.Turn {
	msgs, err := a.store.RecentMessages(conversationID, a.messageWindow+1)
	if err != nil {
		a.log.Error("loading message window", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}

	var turns []ai.Turn
	for _, m := range msgs {
		if m.ID == excludeMessageID {
			continue
		}
		text := m.Content
		if m.Role == store.RoleModel {
			if r, ok := reply.Parse(m.Content); ok && r.FirstText() != "" {
				text = r.FirstText()
			} else {
				text = structuredReplyLabel
			}
		}
		if len(text) > historySnippetLimit {
			text = text[:historySnippetLimit] + "..."
		}
		turns = append(turns, ai.Turn{Role: m.Role, Text: text})
	}
	if len(turns) > a.messageWindow {
		turns = turns[len(turns)-a.messageWindow:]
	}
	return turns
}
