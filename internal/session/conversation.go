package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manash/stitchgen/pkg/models"
)

const (
	Greeting     = "I'm ready to help you edit this embroidery pattern. Tell me what changes you'd like to make!"
	UpdatedReply = "I've updated the image based on your request. What else would you like to change?"
)

var (
	ErrNoPendingTurn = errors.New("no pending turn")
	ErrStaleTurn     = errors.New("turn does not match conversation")
)

// Turn marks the conversation state before a user message was added, so a
// failed edit can be undone.
type Turn struct {
	messages int
	image    string
	user     models.Message
}

func (t Turn) UserMessage() models.Message {
	return t.user
}

// Conversation is the editor's message history for one seed result. It lives
// only while the editor is open.
type Conversation struct {
	mu       sync.RWMutex
	seed     models.GenerationResult
	messages []models.Message
	current  string
	pending  *Turn
	now      func() time.Time
}

func New(seed models.GenerationResult) *Conversation {
	return newConversation(seed, time.Now)
}

func newConversation(seed models.GenerationResult, now func() time.Time) *Conversation {
	c := &Conversation{
		seed:    seed,
		current: seed.ImageURI,
		now:     now,
	}
	c.messages = append(c.messages, models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleAssistant,
		Content:   Greeting,
		ImageURI:  seed.ImageURI,
		Timestamp: now(),
	})
	return c
}

func (c *Conversation) Seed() models.GenerationResult {
	return c.seed
}

func (c *Conversation) CurrentImage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Messages returns a copy of the history, oldest first.
func (c *Conversation) Messages() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Begin appends the user's instruction and returns the turn to pass to Commit
// or Rollback.
func (c *Conversation) Begin(text string) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: c.now(),
	}
	turn := Turn{messages: len(c.messages), image: c.current, user: msg}
	c.messages = append(c.messages, msg)
	c.pending = &turn
	return turn
}

// Commit appends the assistant reply carrying image and makes image current.
func (c *Conversation) Commit(turn Turn, image, reply string) (models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkTurn(turn); err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleAssistant,
		Content:   reply,
		ImageURI:  image,
		Timestamp: c.now(),
	}
	c.messages = append(c.messages, msg)
	c.current = image
	c.pending = nil
	return msg, nil
}

// Rollback restores the history and current image to what they were before
// Begin.
func (c *Conversation) Rollback(turn Turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkTurn(turn); err != nil {
		return err
	}
	c.messages = c.messages[:turn.messages]
	c.current = turn.image
	c.pending = nil
	return nil
}

func (c *Conversation) checkTurn(turn Turn) error {
	if c.pending == nil {
		return ErrNoPendingTurn
	}
	if c.pending.user.ID != turn.user.ID {
		return ErrStaleTurn
	}
	return nil
}
