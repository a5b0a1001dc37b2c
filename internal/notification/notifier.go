package notification

import (
	"context"
	"sync"
	"time"

	"zarigaas/internal/domain/entity"
	"zarigaas/internal/domain/repository"
	"zarigaas/internal/normalize"
	"zarigaas/internal/realtime"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/logger"
)

const sendTimeout = 30 * time.Second

// Notifier emails operators when a record is created in the trigger
// collection. Sending is best effort: failures are logged and never touch
// the record that triggered them.
type Notifier struct {
	manager    *realtime.Manager
	store      repository.DocumentStore
	mailer     Mailer
	collection string
	websiteURL string
	now        func() time.Time

	scope   *realtime.Scope
	jobs    chan repository.Document
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	seen    map[string]bool
	seeded  bool
	started time.Time
	sent    int
}

type Option func(*Notifier)

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// NewNotifier watches collection, which must be pitches or messages.
func NewNotifier(manager *realtime.Manager, store repository.DocumentStore, mailer Mailer, collection, websiteURL string, opts ...Option) (*Notifier, error) {
	if collection != repository.CollectionPitches && collection != repository.CollectionMessages {
		return nil, errors.Validation("notifications support pitches or messages, not "+collection, nil)
	}
	n := &Notifier{
		manager:    manager,
		store:      store,
		mailer:     mailer,
		collection: collection,
		websiteURL: websiteURL,
		now:        time.Now,
		jobs:       make(chan repository.Document, 64),
		seen:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Start opens the watch and the sending worker. Records that already
// existed are not announced, except ones created after Start.
func (n *Notifier) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.started = n.now()

	n.wg.Add(1)
	go n.worker(ctx)

	n.scope = n.manager.NewScope("notifier")
	q := repository.NewQuery(n.collection)
	if _, err := n.scope.Subscribe(ctx, q, realtime.SinkFuncs{
		Snapshot: n.onSnapshot,
		Error: func(err error) {
			logger.Warn("Notifier watch on %s: %v", n.collection, err)
		},
	}); err != nil {
		cancel()
		n.wg.Wait()
		return err
	}
	logger.Info("Notifier watching %s", n.collection)
	return nil
}

// Run starts the notifier and blocks until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	if err := n.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	n.Close()
	return nil
}

func (n *Notifier) Close() {
	if n.scope != nil {
		n.scope.Close()
	}
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
}

// Sent counts emails handed to the mailer without error.
func (n *Notifier) Sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent
}

func (n *Notifier) onSnapshot(snap repository.Snapshot) {
	n.mu.Lock()
	var fresh []repository.Document
	for _, doc := range snap.Documents {
		if n.seen[doc.ID] {
			continue
		}
		n.seen[doc.ID] = true
		if !n.seeded && !n.createdAfterStart(doc, snap.ReadTime) {
			continue
		}
		fresh = append(fresh, doc)
	}
	n.seeded = true
	n.mu.Unlock()

	for _, doc := range fresh {
		select {
		case n.jobs <- doc:
		default:
			logger.Warn("Notifier queue full, dropping notification for %s/%s", n.collection, doc.ID)
		}
	}
}

func (n *Notifier) createdAfterStart(doc repository.Document, readTime time.Time) bool {
	var created time.Time
	var inferred bool
	switch n.collection {
	case repository.CollectionPitches:
		p, _ := normalize.Pitch(doc, readTime)
		created, inferred = p.CreatedAt, p.TimestampInferred
	default:
		m, _ := normalize.Message(doc, readTime)
		created, inferred = m.Timestamp, m.TimestampInferred
	}
	return !inferred && created.After(n.started)
}

func (n *Notifier) worker(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case doc := <-n.jobs:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			if err := n.notify(sendCtx, doc); err != nil {
				logger.Error("Notification for %s/%s failed: %v", n.collection, doc.ID, err)
			}
			cancel()
		}
	}
}

func (n *Notifier) notify(ctx context.Context, doc repository.Document) error {
	var email Email
	var err error
	switch n.collection {
	case repository.CollectionPitches:
		p, _ := normalize.Pitch(doc, n.now())
		email, err = pitchEmail(n.websiteURL, p, n.product(ctx, p.ProductID), nil)
	default:
		m, _ := normalize.Message(doc, n.now())
		sender, isOperator := n.sender(ctx, m.SenderID)
		if isOperator {
			return nil
		}
		var productID string
		if m.ProductContext != nil {
			productID = m.ProductContext.ProductID
		}
		email, err = messageEmail(n.websiteURL, m, sender, n.product(ctx, productID), nil)
	}
	if err != nil {
		return err
	}

	recipients, err := n.recipients(ctx)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		logger.Warn("No operator emails found, skipping notification for %s/%s", n.collection, doc.ID)
		return nil
	}
	email.To = recipients

	if err := n.mailer.Send(ctx, email); err != nil {
		return err
	}
	n.mu.Lock()
	n.sent++
	n.mu.Unlock()
	logger.Info("Notification sent for %s/%s to %d recipients", n.collection, doc.ID, len(recipients))
	return nil
}

// recipients resolves operator email addresses by role.
func (n *Notifier) recipients(ctx context.Context) ([]string, error) {
	q := repository.NewQuery(repository.CollectionUsers).Where(
		normalize.UserAliases.Write("role"), repository.OpIn,
		[]interface{}{string(entity.RoleAdmin), string(entity.RoleOwner)},
	)
	docs, err := n.store.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	var emails []string
	seen := make(map[string]bool)
	for _, doc := range docs {
		u, _ := normalize.User(doc, n.now())
		if u.Email == "" || u.Disabled || seen[u.Email] {
			continue
		}
		seen[u.Email] = true
		emails = append(emails, u.Email)
	}
	return emails, nil
}

func (n *Notifier) product(ctx context.Context, id string) *entity.Product {
	if id == "" {
		return nil
	}
	doc, err := n.store.Get(ctx, repository.CollectionProducts, id)
	if err != nil {
		logger.Debug("Referenced product %s not loaded: %v", id, err)
		return nil
	}
	p, _ := normalize.Product(doc, n.now())
	return &p
}

func (n *Notifier) sender(ctx context.Context, uid string) (email string, operator bool) {
	doc, err := n.store.Get(ctx, repository.CollectionUsers, uid)
	if err != nil {
		return "", false
	}
	u, _ := normalize.User(doc, n.now())
	return u.Email, u.Role.IsOperator()
}
