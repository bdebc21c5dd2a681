package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kardiahealth/kardia/internal/ai"
	"github.com/kardiahealth/kardia/internal/cache"
	"github.com/kardiahealth/kardia/internal/reply"
	"github.com/kardiahealth/kardia/internal/store"
)

// MaxMessageChars bounds a single user message. Longer input is the caller's
// bug and is rejected outright.
const MaxMessageChars = 5000

// Store combines the reads the assembler needs with the one write the
// pipeline performs.
type Store interface {
	ContextStore
	AppendMessage(conversationID, role, content string) (*store.Message, error)
}

// ModelClient produces the raw text body of a model call.
type ModelClient interface {
	Generate(ctx context.Context, p *ai.Prompt) (string, error)
}

// Service runs the reply pipeline: persist the user's turn, memoize, assemble
// context, call the model, normalize, persist the model's turn, invalidate
// dependent views. Any failure past the user's turn degrades to a fallback
// reply instead of an error.
type Service struct {
	store    Store
	client   ModelClient
	cache    cache.Store
	inval    *cache.Invalidator
	asm      *Assembler
	log      *zap.Logger
	replyTTL time.Duration
}

func NewService(st Store, client ModelClient, c cache.Store, log *zap.Logger) *Service {
	return &Service{
		store:    st,
		client:   client,
		cache:    c,
		inval:    cache.NewInvalidator(c, log),
		asm:      NewAssembler(st, log),
		log:      log,
		replyTTL: cache.ReplyTTL,
	}
}

// GetReply is the sole entry point of the pipeline. It returns an error only
// for invalid input or when the user's own turn cannot be durably recorded;
// every other failure comes back as a fallback reply.
func (s *Service) GetReply(ctx context.Context, conversationID, userID, messageText string) (reply.Reply, error) {
	text := strings.TrimSpace(messageText)
	if text == "" {
		return reply.Reply{}, &ai.ValidationError{Msg: "pesan tidak boleh kosong"}
	}
	if len(text) > MaxMessageChars {
		return reply.Reply{}, &ai.ValidationError{Msg: "pesan terlalu panjang"}
	}

	// The user's turn is recorded no matter what happens downstream.
	// Without it there is nothing worth computing, so this is the one
	// write whose failure aborts.
	userMsg, err := s.store.AppendMessage(conversationID, store.RoleUser, text)
	if err != nil {
		return reply.Reply{}, &ai.PersistenceFailure{Op: "append user message", Err: err}
	}
	s.inval.ConversationChanged(userID, conversationID)

	r, err := s.computeReply(ctx, userID, conversationID, text, userMsg.ID)
	if err != nil {
		if ctx.Err() != nil {
			// caller is gone; do not persist a partial or fallback turn
			return reply.Reply{}, err
		}
		cat := ai.ClassifyFallback(err)
		s.log.Error("reply pipeline failed",
			zap.String("conversation_id", conversationID),
			zap.String("user_id", userID),
			zap.String("fallback_category", string(cat)),
			zap.String("message_preview", snippet(text, 100)),
			zap.Error(err))
		r = ai.FallbackReply(cat)
	}

	s.persistModelTurn(conversationID, userID, r)
	return r, nil
}

func (s *Service) computeReply(ctx context.Context, userID, conversationID, text, userMsgID string) (reply.Reply, error) {
	key := cache.ReplyKey(conversationID, text)
	if b, ok := s.cache.Get(key); ok {
		var r reply.Reply
		if err := json.Unmarshal(b, &r); err == nil && !r.Empty() {
			s.log.Debug("reply cache hit", zap.String("conversation_id", conversationID))
			return r, nil
		}
		s.cache.Delete(key)
	}
	s.log.Info("reply cache miss, calling model",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID))

	c := s.asm.Assemble(userID, conversationID, userMsgID)
	prompt := ai.BuildPrompt(c.Language, c.UserContext, c.History, text)

	raw, err := s.client.Generate(ctx, prompt)
	if err != nil {
		return reply.Reply{}, err
	}

	r, err := ai.Normalize(raw)
	if err != nil {
		return reply.Reply{}, err
	}

	if b, err := json.Marshal(r); err == nil {
		s.cache.Set(key, b, s.replyTTL)
	}
	return r, nil
}

// persistModelTurn records the reply (real or fallback) as the model's turn.
// The reply is already in hand, so a failed write is logged rather than
// surfaced.
func (s *Service) persistModelTurn(conversationID, userID string, r reply.Reply) {
	b, err := json.Marshal(r)
	if err != nil {
		s.log.Error("marshaling model reply", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	if _, err := s.store.AppendMessage(conversationID, store.RoleModel, string(b)); err != nil {
		s.log.Error("persisting model reply",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
	s.inval.ConversationChanged(userID, conversationID)
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
