// Package mongostore is the MongoDB document-store backend.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/padmasuda/expensetracker/internal/models"
	"github.com/padmasuda/expensetracker/internal/storage"
)

const (
	expensesCollection = "expenses"
	usersCollection    = "users"
	sessionsCollection = "sessions"
)

type expenseDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Description string             `bson:"description"`
	Amount      float64            `bson:"amount"`
	Completed   *bool              `bson:"completed,omitempty"`
	Owner       string             `bson:"owner"`
	CreatedAt   time.Time          `bson:"created_at"`
}

func (d expenseDocument) model() models.Expense {
	return models.Expense{
		ID:          models.ID(d.ID.Hex()),
		Description: d.Description,
		Amount:      d.Amount,
		Completed:   d.Completed,
		Owner:       d.Owner,
		CreatedAt:   d.CreatedAt,
	}
}

type userDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	PasswordHash string             `bson:"password_hash"`
	CreatedAt    time.Time          `bson:"created_at"`
}

func (d userDocument) model() *models.User {
	return &models.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
	}
}

type sessionDocument struct {
	Token        string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	ExpiresAt    time.Time `bson:"expires_at"`
	LastActivity time.Time `bson:"last_activity"`
}

// Store implements the expense, user and session stores over one database.
type Store struct {
	cli *mongo.Client
	db  *mongo.Database
}

var (
	_ storage.ExpenseStore = (*Store)(nil)
	_ storage.UserStore    = (*Store)(nil)
	_ storage.SessionStore = (*Store)(nil)
)

// New wraps an already connected client.
func New(cli *mongo.Client, database string) *Store {
	return &Store{cli: cli, db: cli.Database(database)}
}

// Connect dials uri, pings the server and ensures indexes.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := New(cli, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the owner, unique username and session TTL indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.db.Collection(expensesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}},
	}); err != nil {
		return fmt.Errorf("mongo couldn't create owner index: %w", err)
	}
	if _, err := s.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("mongo couldn't create username index: %w", err)
	}
	if _, err := s.db.Collection(sessionsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}); err != nil {
		return fmt.Errorf("mongo couldn't create session ttl index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.cli.Disconnect(ctx)
}

// expenseFilter matches by id, and by owner when owner is set. ok is false
// when id is not an ObjectID.
func expenseFilter(id models.ID, owner string) (bson.D, bool) {
	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		return nil, false
	}
	filter := bson.D{{Key: "_id", Value: oid}}
	if owner != "" {
		filter = append(filter, bson.E{Key: "owner", Value: owner})
	}
	return filter, true
}

// ListExpenses returns the owner's expenses in insertion order.
func (s *Store) ListExpenses(ctx context.Context, owner string) ([]models.Expense, error) {
	filter := bson.D{}
	if owner != "" {
		filter = bson.D{{Key: "owner", Value: owner}}
	}
	cursor, err := s.db.Collection(expensesCollection).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo couldn't Find in ListExpenses: %w", err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			logrus.WithError(err).Error("mongo couldn't close cursor in ListExpenses")
		}
	}()

	expenses := []models.Expense{}
	for cursor.Next(ctx) {
		var doc expenseDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo couldn't Decode in ListExpenses: %w", err)
		}
		expenses = append(expenses, doc.model())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor err in ListExpenses: %w", err)
	}
	return expenses, nil
}

// CreateExpense inserts e; the server-side ObjectID becomes its id.
func (s *Store) CreateExpense(ctx context.Context, e *models.Expense) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	doc := expenseDocument{
		ID:          primitive.NewObjectID(),
		Description: e.Description,
		Amount:      e.Amount,
		Completed:   e.Completed,
		Owner:       e.Owner,
		CreatedAt:   e.CreatedAt,
	}
	if _, err := s.db.Collection(expensesCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo couldn't InsertOne in CreateExpense: %w", err)
	}
	e.ID = models.ID(doc.ID.Hex())
	return nil
}

// UpdateExpense sets the fields present in patch and returns the new document.
func (s *Store) UpdateExpense(ctx context.Context, id models.ID, owner string, patch models.ExpensePatch) (*models.Expense, error) {
	filter, ok := expenseFilter(id, owner)
	if !ok {
		return nil, storage.ErrNotFound
	}

	set := bson.D{}
	if patch.Description != nil && *patch.Description != "" {
		set = append(set, bson.E{Key: "description", Value: *patch.Description})
	}
	if patch.Amount != nil {
		set = append(set, bson.E{Key: "amount", Value: *patch.Amount})
	}
	if patch.Completed != nil {
		set = append(set, bson.E{Key: "completed", Value: *patch.Completed})
	}

	var result *mongo.SingleResult
	if len(set) == 0 {
		result = s.db.Collection(expensesCollection).FindOne(ctx, filter)
	} else {
		result = s.db.Collection(expensesCollection).FindOneAndUpdate(ctx, filter,
			bson.D{{Key: "$set", Value: set}},
			options.FindOneAndUpdate().SetReturnDocument(options.After))
	}
	return decodeExpense(result, "UpdateExpense")
}

// ToggleExpense flips completed in a single pipeline update. A missing flag becomes true.
func (s *Store) ToggleExpense(ctx context.Context, id models.ID, owner string) (*models.Expense, error) {
	filter, ok := expenseFilter(id, owner)
	if !ok {
		return nil, storage.ErrNotFound
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "completed", Value: bson.D{
			{Key: "$not", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$completed", false}}}}},
		}}}}},
	}
	result := s.db.Collection(expensesCollection).FindOneAndUpdate(ctx, filter, pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After))
	return decodeExpense(result, "ToggleExpense")
}

func decodeExpense(result *mongo.SingleResult, method string) (*models.Expense, error) {
	var doc expenseDocument
	if err := result.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("mongo couldn't Decode in %s: %w", method, err)
	}
	e := doc.model()
	return &e, nil
}

// DeleteExpense removes the expense.
func (s *Store) DeleteExpense(ctx context.Context, id models.ID, owner string) error {
	filter, ok := expenseFilter(id, owner)
	if !ok {
		return storage.ErrNotFound
	}
	res, err := s.db.Collection(expensesCollection).DeleteMany(ctx, filter)
	if err != nil {
		return fmt.Errorf("mongo couldn't DeleteMany in DeleteExpense: %w", err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateUser inserts a user; a taken username yields storage.ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	doc := userDocument{
		ID:           primitive.NewObjectID(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.db.Collection(usersCollection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("user %s: %w", username, storage.ErrDuplicate)
		}
		return nil, fmt.Errorf("mongo couldn't InsertOne in CreateUser: %w", err)
	}
	return doc.model(), nil
}

func (s *Store) findUser(ctx context.Context, filter bson.D) (*models.User, error) {
	var doc userDocument
	if err := s.db.Collection(usersCollection).FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("mongo couldn't FindOne user: %w", err)
	}
	return doc.model(), nil
}

// GetUserByID retrieves a user by ObjectID hex.
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, storage.ErrNotFound
	}
	return s.findUser(ctx, bson.D{{Key: "_id", Value: oid}})
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, bson.D{{Key: "username", Value: username}})
}

// UserCount returns the number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	n, err := s.db.Collection(usersCollection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongo couldn't CountDocuments in UserCount: %w", err)
	}
	return int(n), nil
}

// CreateSession stores a session keyed by token.
func (s *Store) CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := s.db.Collection(sessionsCollection).InsertOne(ctx, sessionDocument{
		Token:        token,
		UserID:       userID,
		ExpiresAt:    expiresAt.UTC(),
		LastActivity: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("mongo couldn't InsertOne in CreateSession: %w", err)
	}
	return nil
}

// ValidateSession returns the live session and its user. The TTL monitor
// runs only once a minute, so expiry is also checked in the filter.
func (s *Store) ValidateSession(ctx context.Context, token string) (*storage.SessionInfo, error) {
	var doc sessionDocument
	err := s.db.Collection(sessionsCollection).FindOne(ctx, bson.D{
		{Key: "_id", Value: token},
		{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: time.Now().UTC()}}},
	}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("mongo couldn't FindOne in ValidateSession: %w", err)
	}

	user, err := s.GetUserByID(ctx, doc.UserID)
	if err != nil {
		return nil, err
	}
	return &storage.SessionInfo{
		User:         user,
		LastActivity: doc.LastActivity,
		ExpiresAt:    doc.ExpiresAt,
	}, nil
}

// RenewSession updates last_activity and expires_at.
func (s *Store) RenewSession(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := s.db.Collection(sessionsCollection).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: token}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "expires_at", Value: expiresAt.UTC()},
			{Key: "last_activity", Value: time.Now().UTC()},
		}}})
	if err != nil {
		return fmt.Errorf("mongo couldn't UpdateOne in RenewSession: %w", err)
	}
	return nil
}

// DeleteSession removes a session by token.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.Collection(sessionsCollection).DeleteOne(ctx, bson.D{{Key: "_id", Value: token}}); err != nil {
		return fmt.Errorf("mongo couldn't DeleteOne in DeleteSession: %w", err)
	}
	return nil
}

// CleanExpiredSessions removes sessions the TTL monitor has not reaped yet.
func (s *Store) CleanExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.Collection(sessionsCollection).DeleteMany(ctx, bson.D{
		{Key: "expires_at", Value: bson.D{{Key: "$lte", Value: time.Now().UTC()}}},
	})
	if err != nil {
		return 0, fmt.Errorf("mongo couldn't DeleteMany in CleanExpiredSessions: %w", err)
	}
	return res.DeletedCount, nil
}
