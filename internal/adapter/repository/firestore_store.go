package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"zarigaas/internal/domain/repository"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/logger"
)

type firestoreStore struct {
	client     *firestore.Client
	retryDelay time.Duration
}

// NewFirestoreStore wraps a Firestore client. retryDelay spaces out
// listener reopen attempts after transient failures.
func NewFirestoreStore(client *firestore.Client, retryDelay time.Duration) repository.DocumentStore {
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &firestoreStore{
		client:     client,
		retryDelay: retryDelay,
	}
}

func (s *firestoreStore) query(q repository.Query) firestore.Query {
	query := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		query = query.Where(f.Field, string(f.Op), f.Value)
	}
	return query
}

func (s *firestoreStore) Subscribe(ctx context.Context, q repository.Query) (<-chan repository.SnapshotEvent, error) {
	out := make(chan repository.SnapshotEvent)
	go func() {
		defer close(out)
		for {
			terminal := s.listen(ctx, q, out)
			if terminal || ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
				logger.Debug("Reopening Firestore listener for %s", q.Key())
			}
		}
	}()
	return out, nil
}

// listen runs one Firestore snapshot listener until it fails. It reports
// whether the failure was terminal.
func (s *firestoreStore) listen(ctx context.Context, q repository.Query, out chan<- repository.SnapshotEvent) bool {
	it := s.query(q).Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err == nil {
			docs, derr := collect(snap.Documents)
			if derr != nil {
				err = derr
			} else {
				if !send(ctx, out, repository.SnapshotEvent{Snapshot: repository.Snapshot{Documents: docs, ReadTime: snap.ReadTime}}) {
					return true
				}
				continue
			}
		}
		if ctx.Err() != nil {
			return true
		}
		translated := translateError("listen on "+q.Collection, err)
		if !send(ctx, out, repository.SnapshotEvent{Err: translated}) {
			return true
		}
		return !errors.Retryable(translated)
	}
}

func send(ctx context.Context, out chan<- repository.SnapshotEvent, ev repository.SnapshotEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

func collect(iter *firestore.DocumentIterator) ([]repository.Document, error) {
	defer iter.Stop()
	docs := []repository.Document{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, repository.Document{ID: doc.Ref.ID, Data: doc.Data()})
	}
	return docs, nil
}

func (s *firestoreStore) Get(ctx context.Context, collection, id string) (repository.Document, error) {
	doc, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return repository.Document{}, errors.NotFound("Document "+collection+"/"+id, err)
		}
		return repository.Document{}, translateError("get "+collection, err)
	}
	return repository.Document{ID: doc.Ref.ID, Data: doc.Data()}, nil
}

func (s *firestoreStore) Find(ctx context.Context, q repository.Query) ([]repository.Document, error) {
	docs, err := collect(s.query(q).Documents(ctx))
	if err != nil {
		return nil, translateError("query "+q.Collection, err)
	}
	return docs, nil
}

func (s *firestoreStore) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, toFirestoreData(data))
	if err != nil {
		return "", translateError("add to "+collection, err)
	}
	return ref.ID, nil
}

func (s *firestoreStore) Create(ctx context.Context, collection, id string, data map[string]interface{}) error {
	_, err := s.client.Collection(collection).Doc(id).Create(ctx, toFirestoreData(data))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.AlreadyExists("Document "+collection+"/"+id, err)
		}
		return translateError("create in "+collection, err)
	}
	return nil
}

func (s *firestoreStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, toFirestoreUpdates(fields))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Document "+collection+"/"+id, err)
		}
		return translateError("update in "+collection, err)
	}
	return nil
}

func (s *firestoreStore) UpdateIf(ctx context.Context, collection, id, field string, expected interface{}, fields map[string]interface{}) error {
	ref := s.client.Collection(collection).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if !repository.SameValue(snap.Data()[field], expected) {
			return errors.Conflict("Document " + collection + "/" + id + " changed concurrently")
		}
		return tx.Update(ref, toFirestoreUpdates(fields))
	})
	if err != nil {
		if errors.Is(err, errors.CodeConflict) {
			return err
		}
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Document "+collection+"/"+id, err)
		}
		return translateError("update in "+collection, err)
	}
	return nil
}

func (s *firestoreStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx)
	if err != nil {
		return translateError("delete from "+collection, err)
	}
	return nil
}

func (s *firestoreStore) CreateAndUpdate(ctx context.Context, create repository.Write, update repository.Write) error {
	createRef := s.client.Collection(create.Collection).Doc(create.ID)
	updateRef := s.client.Collection(update.Collection).Doc(update.ID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(createRef, toFirestoreData(create.Data)); err != nil {
			return err
		}
		return tx.Update(updateRef, toFirestoreUpdates(update.Data))
	})
	if err != nil {
		switch status.Code(err) {
		case codes.AlreadyExists:
			return errors.AlreadyExists("Document "+create.Collection+"/"+create.ID, err)
		case codes.NotFound:
			return errors.NotFound("Document "+update.Collection+"/"+update.ID, err)
		}
		return translateError("transaction", err)
	}
	return nil
}

func (s *firestoreStore) Close() error {
	return s.client.Close()
}

func toFirestoreValue(v interface{}) interface{} {
	if repository.IsServerTimestamp(v) {
		return firestore.ServerTimestamp
	}
	if inc, ok := v.(repository.IncrementValue); ok {
		return firestore.Increment(inc.By)
	}
	return v
}

func toFirestoreData(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = toFirestoreValue(v)
	}
	return out
}

func toFirestoreUpdates(fields map[string]interface{}) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: toFirestoreValue(v)})
	}
	return updates
}

// translateError maps gRPC status codes onto the application error taxonomy.
func translateError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.DeadlineExceeded(err) {
		return errors.Timeout(operation+" timed out", err)
	}
	switch status.Code(err) {
	case codes.NotFound:
		return errors.NotFound(operation, err)
	case codes.AlreadyExists:
		return errors.AlreadyExists(operation, err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return errors.PermissionDenied("Permission denied: "+operation, err)
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return errors.Unavailable("Store unavailable: "+operation, err)
	case codes.DeadlineExceeded:
		return errors.Timeout(operation+" timed out", err)
	case codes.FailedPrecondition, codes.InvalidArgument:
		return errors.Schema("Query rejected by store: "+operation, err)
	}
	return errors.Internal("Failed to "+operation, err)
}
