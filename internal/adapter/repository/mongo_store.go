package repository

import (
	"context"
	goerrors "errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"zarigaas/internal/domain/repository"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/logger"
)

type mongoStore struct {
	client     *mongo.Client
	db         *mongo.Database
	retryDelay time.Duration
}

// NewMongoStore connects to MongoDB. Live subscriptions use change streams,
// so the server must run as a replica set.
func NewMongoStore(ctx context.Context, uri, database string, retryDelay time.Duration) (repository.DocumentStore, error) {
	clientOptions := options.Client().ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, mongoError("connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, mongoError("ping", err)
	}
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &mongoStore{
		client:     client,
		db:         client.Database(database),
		retryDelay: retryDelay,
	}, nil
}

func (s *mongoStore) Subscribe(ctx context.Context, q repository.Query) (<-chan repository.SnapshotEvent, error) {
	out := make(chan repository.SnapshotEvent)
	go func() {
		defer close(out)
		for {
			terminal := s.watch(ctx, q, out)
			if terminal || ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
				logger.Debug("Reopening MongoDB change stream for %s", q.Key())
			}
		}
	}()
	return out, nil
}

// watch opens a change stream, emits the current result set and re-queries
// after every change event. It reports whether the failure was terminal.
func (s *mongoStore) watch(ctx context.Context, q repository.Query, out chan<- repository.SnapshotEvent) bool {
	coll := s.db.Collection(q.Collection)
	stream, err := coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return s.fail(ctx, q, out, err)
	}
	defer stream.Close(context.Background())

	emit := func() bool {
		docs, err := s.Find(ctx, q)
		if err != nil {
			return s.fail(ctx, q, out, err)
		}
		if !send(ctx, out, repository.SnapshotEvent{Snapshot: repository.Snapshot{Documents: docs, ReadTime: time.Now()}}) {
			return true
		}
		return false
	}

	if done := emit(); done {
		return true
	}
	for stream.Next(ctx) {
		if done := emit(); done {
			return true
		}
	}
	if ctx.Err() != nil {
		return true
	}
	if err := stream.Err(); err != nil {
		return s.fail(ctx, q, out, err)
	}
	return false
}

func (s *mongoStore) fail(ctx context.Context, q repository.Query, out chan<- repository.SnapshotEvent, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	translated := mongoError("watch "+q.Collection, err)
	if !send(ctx, out, repository.SnapshotEvent{Err: translated}) {
		return true
	}
	return !errors.Retryable(translated)
}

func (s *mongoStore) Get(ctx context.Context, collection, id string) (repository.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if goerrors.Is(err, mongo.ErrNoDocuments) {
			return repository.Document{}, errors.NotFound("Document "+collection+"/"+id, err)
		}
		return repository.Document{}, mongoError("get "+collection, err)
	}
	return fromBSON(raw), nil
}

func (s *mongoStore) Find(ctx context.Context, q repository.Query) ([]repository.Document, error) {
	cursor, err := s.db.Collection(q.Collection).Find(ctx, toBSONFilter(q.Filters))
	if err != nil {
		return nil, mongoError("query "+q.Collection, err)
	}
	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, mongoError("query "+q.Collection, err)
	}
	docs := make([]repository.Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, fromBSON(raw))
	}
	return docs, nil
}

func (s *mongoStore) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	id := uuid.New().String()
	if err := s.Create(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *mongoStore) Create(ctx context.Context, collection, id string, data map[string]interface{}) error {
	_, err := s.db.Collection(collection).InsertOne(ctx, toBSONDocument(id, data))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.AlreadyExists("Document "+collection+"/"+id, err)
		}
		return mongoError("create in "+collection, err)
	}
	return nil
}

func (s *mongoStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, toBSONUpdate(fields))
	if err != nil {
		return mongoError("update in "+collection, err)
	}
	if res.MatchedCount == 0 {
		return errors.NotFound("Document "+collection+"/"+id, nil)
	}
	return nil
}

func (s *mongoStore) UpdateIf(ctx context.Context, collection, id, field string, expected interface{}, fields map[string]interface{}) error {
	// A null match in mongo covers both a null and a missing field.
	filter := bson.M{"_id": id, field: expected}
	res, err := s.db.Collection(collection).UpdateOne(ctx, filter, toBSONUpdate(fields))
	if err != nil {
		return mongoError("update in "+collection, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := s.Get(ctx, collection, id); err != nil {
		return err
	}
	return errors.Conflict("Document " + collection + "/" + id + " changed concurrently")
}

func (s *mongoStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return mongoError("delete from "+collection, err)
	}
	return nil
}

func (s *mongoStore) CreateAndUpdate(ctx context.Context, create repository.Write, update repository.Write) error {
	session, err := s.client.StartSession()
	if err != nil {
		return mongoError("start session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if _, err := s.db.Collection(create.Collection).InsertOne(sessCtx, toBSONDocument(create.ID, create.Data)); err != nil {
			return nil, err
		}
		res, err := s.db.Collection(update.Collection).UpdateOne(sessCtx, bson.M{"_id": update.ID}, toBSONUpdate(update.Data))
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, errors.NotFound("Document "+update.Collection+"/"+update.ID, nil)
		}
		return nil, nil
	})
	if err != nil {
		var appErr *errors.AppError
		if goerrors.As(err, &appErr) {
			return appErr
		}
		if mongo.IsDuplicateKeyError(err) {
			return errors.AlreadyExists("Document "+create.Collection+"/"+create.ID, err)
		}
		return mongoError("transaction", err)
	}
	return nil
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func toBSONFilter(filters []repository.Filter) bson.M {
	out := bson.M{}
	for _, f := range filters {
		var cond interface{}
		switch f.Op {
		case repository.OpEqual, repository.OpArrayContains:
			cond = f.Value
		case repository.OpNotEqual:
			cond = bson.M{"$ne": f.Value}
		case repository.OpLess:
			cond = bson.M{"$lt": f.Value}
		case repository.OpLessEqual:
			cond = bson.M{"$lte": f.Value}
		case repository.OpGreater:
			cond = bson.M{"$gt": f.Value}
		case repository.OpGreaterEqual:
			cond = bson.M{"$gte": f.Value}
		case repository.OpIn:
			cond = bson.M{"$in": f.Value}
		}
		if existing, ok := out[f.Field]; ok {
			out["$and"] = append(asAnd(out["$and"]), bson.M{f.Field: existing}, bson.M{f.Field: cond})
			delete(out, f.Field)
			continue
		}
		out[f.Field] = cond
	}
	return out
}

func asAnd(v interface{}) bson.A {
	if a, ok := v.(bson.A); ok {
		return a
	}
	return bson.A{}
}

func toBSONDocument(id string, data map[string]interface{}) bson.M {
	doc := bson.M{"_id": id}
	now := time.Now().UTC()
	for k, v := range data {
		switch val := v.(type) {
		case repository.IncrementValue:
			doc[k] = val.By
		default:
			if repository.IsServerTimestamp(v) {
				doc[k] = now
				continue
			}
			doc[k] = v
		}
	}
	return doc
}

func toBSONUpdate(fields map[string]interface{}) bson.M {
	set := bson.M{}
	inc := bson.M{}
	stamp := bson.M{}
	for k, v := range fields {
		switch val := v.(type) {
		case repository.IncrementValue:
			inc[k] = val.By
		default:
			if repository.IsServerTimestamp(v) {
				stamp[k] = bson.M{"$type": "date"}
				continue
			}
			set[k] = v
		}
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	if len(stamp) > 0 {
		update["$currentDate"] = stamp
	}
	return update
}

func fromBSON(raw bson.M) repository.Document {
	id, _ := raw["_id"].(string)
	if oid, ok := raw["_id"].(primitive.ObjectID); ok {
		id = oid.Hex()
	}
	data := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		data[k] = fromBSONValue(v)
	}
	return repository.Document{ID: id, Data: data}
}

func fromBSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.A:
		out := make([]interface{}, len(val))
		for i := range val {
			out[i] = fromBSONValue(val[i])
		}
		return out
	case bson.M:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = fromBSONValue(item)
		}
		return out
	case primitive.D:
		out := make(map[string]interface{}, len(val))
		for _, e := range val {
			out[e.Key] = fromBSONValue(e.Value)
		}
		return out
	case int32:
		return int64(val)
	}
	return v
}

// mongoError maps driver failures onto the application error taxonomy.
func mongoError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.DeadlineExceeded(err) || mongo.IsTimeout(err) {
		return errors.Timeout(operation+" timed out", err)
	}
	if mongo.IsNetworkError(err) || goerrors.Is(err, mongo.ErrClientDisconnected) {
		return errors.Unavailable("Store unavailable: "+operation, err)
	}
	var serverErr mongo.ServerError
	if goerrors.As(err, &serverErr) {
		switch {
		case serverErr.HasErrorCode(13), serverErr.HasErrorCode(18):
			return errors.PermissionDenied("Permission denied: "+operation, err)
		case serverErr.HasErrorCode(40573), serverErr.HasErrorCode(2), serverErr.HasErrorCode(9):
			return errors.Schema("Query rejected by store: "+operation, err)
		case serverErr.HasErrorLabel("TransientTransactionError"):
			return errors.Unavailable("Store unavailable: "+operation, err)
		}
	}
	return errors.Internal("Failed to "+operation, err)
}
