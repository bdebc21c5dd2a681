package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ReplyKey fingerprints one (conversation, user message) pair for reply
// memoization. The message text is hashed so the key stays bounded; callers
// pass the already-normalized (trimmed) text.
func ReplyKey(conversationID, message string) string {
	sum := sha256.Sum256([]byte(message))
	return fmt.Sprintf("reply:conv:%s:%s", conversationID, hex.EncodeToString(sum[:]))
}

// Derived-view keys. Each is an explicit, enumerable dependency identifier —
// invalidation never scans for patterns.

func ConversationListKey(userID string) string {
	return fmt.Sprintf("user:%s:conversations_list", userID)
}

func ConversationDetailKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:details", conversationID)
}

func MessageWindowKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:messages", conversationID)
}

func DashboardKey(userID string) string {
	return fmt.Sprintf("user:%s:dashboard_assessments", userID)
}

func RecentAssessmentsKey(userID string) string {
	return fmt.Sprintf("user:%s:latest_assessments", userID)
}
