package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const linesCollection = "cart_lines"

type MongoRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection(linesCollection),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "customer_id", Value: 1}, {Key: "book_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "line_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func ifNull(field string, fallback any) bson.D {
	return bson.D{{Key: "$ifNull", Value: bson.A{field, fallback}}}
}

func literal(v any) bson.D {
	return bson.D{{Key: "$literal", Value: v}}
}

func (m *MongoRepository) AddQuantity(ctx context.Context, customerID string, bookID int64, qty int32, price int64) (*domain.CartLine, error) {
	if qty > domain.MaxLineQuantity {
		return nil, domain.LineQuantityLimitError()
	}

	// an existing line without room for qty does not match, so the upsert
	// falls through to an insert that hits the unique index
	filter := bson.M{
		"customer_id": customerID,
		"book_id":     bookID,
		"quantity":    bson.M{"$not": bson.M{"$gt": domain.MaxLineQuantity - qty}},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	upsert := func() (*domain.CartLine, error) {
		now := m.now()
		// the pipeline reads the stored quantity and writes the merged one in one step
		update := mongo.Pipeline{
			{{Key: "$set", Value: bson.D{
				{Key: "line_id", Value: ifNull("$line_id", uuid.NewString())},
				{Key: "customer_id", Value: literal(customerID)},
				{Key: "book_id", Value: bookID},
				{Key: "quantity", Value: bson.D{{Key: "$add", Value: bson.A{ifNull("$quantity", int32(0)), qty}}}},
				{Key: "created_at", Value: ifNull("$created_at", now)},
				{Key: "updated_at", Value: now},
			}}},
			{{Key: "$set", Value: bson.D{
				{Key: "subtotal", Value: bson.D{{Key: "$multiply", Value: bson.A{"$quantity", price}}}},
			}}},
		}

		var line domain.CartLine
		if err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&line); err != nil {
			return nil, err
		}
		return &line, nil
	}

	line, err := upsert()
	// two concurrent upserts of a new line race on the unique index; the loser
	// retries and finds the winner's document
	if mongo.IsDuplicateKeyError(err) {
		line, err = upsert()
	}
	if mongo.IsDuplicateKeyError(err) {
		return nil, domain.LineQuantityLimitError()
	}
	if err != nil {
		return nil, domain.Persistence("add cart line", err)
	}
	return line, nil
}

func (m *MongoRepository) SetQuantity(ctx context.Context, customerID, lineID string, qty int32, price int64) (*domain.CartLine, error) {
	filter := bson.M{"customer_id": customerID, "line_id": lineID}
	update := bson.M{
		"$set": bson.M{
			"quantity":   qty,
			"subtotal":   int64(qty) * price,
			"updated_at": m.now(),
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var line domain.CartLine
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&line)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrCartLineNotFound
	}
	if err != nil {
		return nil, domain.Persistence("set cart line quantity", err)
	}
	return &line, nil
}

func (m *MongoRepository) GetLine(ctx context.Context, customerID, lineID string) (*domain.CartLine, error) {
	var line domain.CartLine

	filter := bson.M{"customer_id": customerID, "line_id": lineID}
	err := m.collection.FindOne(ctx, filter).Decode(&line)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrCartLineNotFound
	}
	if err != nil {
		return nil, domain.Persistence("get cart line", err)
	}
	return &line, nil
}

func (m *MongoRepository) ListLines(ctx context.Context, customerID string) ([]domain.CartLine, error) {
	filter := bson.M{"customer_id": customerID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, domain.Persistence("list cart lines", err)
	}
	defer cursor.Close(ctx)

	lines := make([]domain.CartLine, 0)
	if err := cursor.All(ctx, &lines); err != nil {
		return nil, domain.Persistence("decode cart lines", err)
	}
	return lines, nil
}

func (m *MongoRepository) DeleteLine(ctx context.Context, customerID, lineID string) error {
	filter := bson.M{"customer_id": customerID, "line_id": lineID}

	result, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return domain.Persistence("delete cart line", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrCartLineNotFound
	}
	return nil
}

func (m *MongoRepository) RemoveBooks(ctx context.Context, customerID string, bookIDs []int64) (int64, error) {
	if len(bookIDs) == 0 {
		return 0, nil
	}

	filter := bson.M{"customer_id": customerID, "book_id": bson.M{"$in": bookIDs}}
	result, err := m.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, domain.Persistence("remove cart lines", err)
	}
	return result.DeletedCount, nil
}
