package usecase

import (
	"sync"
	"time"

	"zarigaas/pkg/errors"
)

// Confirmation is handed back by a destructive request. The write only
// happens once the same actor presents Token before ExpiresAt.
type Confirmation struct {
	Token      string    `json:"token"`
	Collection string    `json:"collection"`
	TargetID   string    `json:"targetId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type pendingDeletion struct {
	Confirmation
	actorUID string
}

type confirmations struct {
	mu       sync.Mutex
	pending  map[string]pendingDeletion
	ttl      time.Duration
	now      func() time.Time
	newToken func() string
}

func newConfirmations(ttl time.Duration, now func() time.Time, newToken func() string) *confirmations {
	return &confirmations{
		pending:  make(map[string]pendingDeletion),
		ttl:      ttl,
		now:      now,
		newToken: newToken,
	}
}

func (c *confirmations) issue(actorUID, collection, targetID string) Confirmation {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for token, p := range c.pending {
		if !now.Before(p.ExpiresAt) {
			delete(c.pending, token)
		}
	}

	conf := Confirmation{
		Token:      c.newToken(),
		Collection: collection,
		TargetID:   targetID,
		ExpiresAt:  now.Add(c.ttl),
	}
	c.pending[conf.Token] = pendingDeletion{Confirmation: conf, actorUID: actorUID}
	return conf
}

// consume removes and returns the pending deletion for token.
func (c *confirmations) consume(actorUID, token string) (Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[token]
	if !ok {
		return Confirmation{}, errors.Validation("Confirmation not found or already used", nil)
	}
	if p.actorUID != actorUID {
		return Confirmation{}, errors.Forbidden("Confirmation belongs to another user", nil)
	}
	delete(c.pending, token)
	if !c.now().Before(p.ExpiresAt) {
		return Confirmation{}, errors.Validation("Confirmation expired, please try again", nil)
	}
	return p.Confirmation, nil
}

func (c *confirmations) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
