package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	profilesBucket      = []byte("profiles")
	conversationsBucket = []byte("conversations")
	messagesBucket      = []byte("messages")    // one sub-bucket per conversation, keyed by sequence
	assessmentsBucket   = []byte("assessments") // one sub-bucket per user, keyed by sequence
)

// Message roles. A message's role never changes after creation.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

var ErrNotFound = errors.New("store: not found")

// Profile holds the user fields the coach personalizes on.
type Profile struct {
	UserID      string    `json:"user_id"`
	FirstName   string    `json:"first_name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Sex         string    `json:"sex"`
	Language    string    `json:"language"`
}

// Age derives the user's age in whole years at t.
func (p Profile) Age(t time.Time) int {
	if p.DateOfBirth.IsZero() {
		return 0
	}
	years := t.Year() - p.DateOfBirth.Year()
	if t.YearDay() < p.DateOfBirth.YearDay() {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is append-only: no edits, ever. User turns hold plain text, model
// turns hold a serialized canonical reply.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type RiskAssessment struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	RiskPercentage float64         `json:"risk_percentage"`
	RiskCategory   string          `json:"risk_category"`
	Report         json.RawMessage `json:"report,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Store interface {
	SaveProfile(p Profile) error
	GetProfile(userID string) (*Profile, error)

	CreateConversation(userID, title string) (*Conversation, error)
	GetConversation(id string) (*Conversation, error)
	ListConversations(userID string) ([]Conversation, error)
	RenameConversation(id, title string) (*Conversation, error)
	DeleteConversation(id string) error

	AppendMessage(conversationID, role, content string) (*Message, error)
	RecentMessages(conversationID string, limit int) ([]Message, error)
	ListMessages(conversationID string) ([]Message, error)

	CreateAssessment(userID string, riskPercentage float64, riskCategory string) (*RiskAssessment, error)
	RecentAssessments(userID string, limit int) ([]RiskAssessment, error)
	GetAssessment(userID, id string) (*RiskAssessment, error)
	SaveAssessmentReport(userID, id string, report json.RawMessage) error

	Close() error
}

type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{profilesBucket, conversationsBucket, messagesBucket, assessmentsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveProfile(p Profile) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Bucket(profilesBucket).Put([]byte(p.UserID), data)
	})
}

func (s *BoltStore) GetProfile(userID string) (*Profile, error) {
	var p Profile
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(profilesBucket).Get([]byte(userID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &p)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *BoltStore) CreateConversation(userID, title string) (*Conversation, error) {
	now := time.Now().UTC()
	conv := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(conversationsBucket), []byte(conv.ID), conv)
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *BoltStore) GetConversation(id string) (*Conversation, error) {
	var conv Conversation
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(conversationsBucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &conv)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, most recently active
// first.
func (s *BoltStore) ListConversations(userID string) ([]Conversation, error) {
	var convs []Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).ForEach(func(_, v []byte) error {
			var c Conversation
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.UserID == userID {
				convs = append(convs, c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs, nil
}

func (s *BoltStore) RenameConversation(id, title string) (*Conversation, error) {
	var conv Conversation
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(v, &conv); err != nil {
			return err
		}
		conv.Title = title
		conv.UpdatedAt = time.Now().UTC()
		return putJSON(b, []byte(id), conv)
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *BoltStore) DeleteConversation(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(conversationsBucket).Get([]byte(id)) == nil {
			return ErrNotFound
		}
		if err := tx.Bucket(conversationsBucket).Delete([]byte(id)); err != nil {
			return err
		}
		// messages go with the conversation
		err := tx.Bucket(messagesBucket).DeleteBucket([]byte(id))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (s *BoltStore) AppendMessage(conversationID, role, content string) (*Message, error) {
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		convs := tx.Bucket(conversationsBucket)
		v := convs.Get([]byte(conversationID))
		if v == nil {
			return ErrNotFound
		}

		b, err := tx.Bucket(messagesBucket).CreateBucketIfNotExists([]byte(conversationID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := putJSON(b, itob(seq), msg); err != nil {
			return err
		}

		// new activity bumps the conversation's updated timestamp
		var conv Conversation
		if err := json.Unmarshal(v, &conv); err != nil {
			return err
		}
		conv.UpdatedAt = msg.CreatedAt
		return putJSON(convs, []byte(conversationID), conv)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// RecentMessages returns the last limit messages in chronological order,
// oldest first. Persistence order defines message order.
func (s *BoltStore) RecentMessages(conversationID string, limit int) ([]Message, error) {
	var msgs []Message
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(messagesBucket).Bucket([]byte(conversationID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var m Message
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			msgs = append(msgs, m)
			if limit > 0 && len(msgs) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

func (s *BoltStore) ListMessages(conversationID string) ([]Message, error) {
	return s.RecentMessages(conversationID, 0)
}

func (s *BoltStore) CreateAssessment(userID string, riskPercentage float64, riskCategory string) (*RiskAssessment, error) {
	a := RiskAssessment{
		ID:             uuid.NewString(),
		UserID:         userID,
		RiskPercentage: riskPercentage,
		RiskCategory:   riskCategory,
		CreatedAt:      time.Now().UTC(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(assessmentsBucket).CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return putJSON(b, itob(seq), a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// RecentAssessments returns the user's assessments newest first. A limit of
// zero returns all of them.
func (s *BoltStore) RecentAssessments(userID string, limit int) ([]RiskAssessment, error) {
	var out []RiskAssessment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(assessmentsBucket).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var a RiskAssessment
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, a)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) GetAssessment(userID, id string) (*RiskAssessment, error) {
	var found *RiskAssessment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(assessmentsBucket).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var a RiskAssessment
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.ID == id {
				found = &a
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *BoltStore) SaveAssessmentReport(userID, id string, report json.RawMessage) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(assessmentsBucket).Bucket([]byte(userID))
		if b == nil {
			return ErrNotFound
		}
		var key []byte
		var a RiskAssessment
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var cur RiskAssessment
			if err := json.Unmarshal(v, &cur); err != nil {
				return err
			}
			if cur.ID == id {
				key = bytes.Clone(k)
				a = cur
				break
			}
		}
		if key == nil {
			return ErrNotFound
		}
		a.Report = report
		return putJSON(b, key, a)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
