package telegram

import (
	"fmt"
	"sync"

	"github.com/lithammer/shortuuid/v4"
)

// maxTrackedMessages bounds the edit index. Edits only arrive for
// recent messages, so dropping the whole index just means older edits
// are ignored.
const maxTrackedMessages = 4096

// conversations tracks the active conversation per chat. A conversation
// lives until /new or /forget rotates it; ids are short and URL-safe so
// they read well in logs.
type conversations struct {
	mu     sync.Mutex
	byChat map[int64]string
}

func newConversations() *conversations {
	return &conversations{byChat: make(map[int64]string)}
}

// current returns the chat's conversation id, creating one if needed.
func (c *conversations) current(chatID int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.byChat[chatID]; ok {
		return id
	}
	id := shortuuid.New()
	c.byChat[chatID] = id
	return id
}

// rotate starts a fresh conversation for the chat and returns the new id.
func (c *conversations) rotate(chatID int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := shortuuid.New()
	c.byChat[chatID] = id
	return id
}

// entryIndex remembers which memory entry a telegram message produced,
// so message edits can replace the stored turn.
type entryIndex struct {
	mu    sync.Mutex
	byMsg map[string]string
}

func newEntryIndex() *entryIndex {
	return &entryIndex{byMsg: make(map[string]string)}
}

func messageKey(chatID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

func (i *entryIndex) remember(chatID int64, messageID int, entryID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.byMsg) >= maxTrackedMessages {
		i.byMsg = make(map[string]string, maxTrackedMessages)
	}
	i.byMsg[messageKey(chatID, messageID)] = entryID
}

func (i *entryIndex) lookup(chatID int64, messageID int) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	id, ok := i.byMsg[messageKey(chatID, messageID)]
	return id, ok
}
