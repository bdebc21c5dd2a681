package cache

import "go.uber.org/zap"

// Invalidator deletes every derived view depending on an entity. Mutating
// call sites invoke it after the write and before reporting success; there is
// no rollback path if a delete fails, since TTLs bound any staleness.
type Invalidator struct {
	store Store
	log   *zap.Logger
}

func NewInvalidator(store Store, log *zap.Logger) *Invalidator {
	return &Invalidator{store: store, log: log}
}

// ConversationChanged fires on any mutation to a conversation or its
// messages: new message, title change, deletion.
func (i *Invalidator) ConversationChanged(userID, conversationID string) {
	i.store.Delete(ConversationDetailKey(conversationID))
	i.store.Delete(MessageWindowKey(conversationID))
	i.store.Delete(ConversationListKey(userID))
	i.log.Debug("invalidated conversation views",
		zap.String("user_id", userID),
		zap.String("conversation_id", conversationID))
}

// AssessmentsChanged fires when a risk assessment is created or its report
// is updated.
func (i *Invalidator) AssessmentsChanged(userID string) {
	i.store.Delete(DashboardKey(userID))
	i.store.Delete(RecentAssessmentsKey(userID))
	i.log.Debug("invalidated assessment views", zap.String("user_id", userID))
}
