package mongodb

import (
	"context"
	"errors"
	"time"

	"closet_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const emailArchiveCollection = "email_archive"

// emailDocument is the stored shape of an archived email.
type emailDocument struct {
	EmailID    string    `bson:"email_id"`
	UserID     string    `bson:"user_id"`
	From       string    `bson:"from"`
	Subject    string    `bson:"subject"`
	ReceivedAt time.Time `bson:"received_at"`
	HTML       string    `bson:"html"`
	Text       string    `bson:"text"`
	ArchivedAt time.Time `bson:"archived_at"`
}

// EmailArchiveAdapter implements the archive port.
type EmailArchiveAdapter struct {
	collection *mongo.Collection
}

var _ out.EmailArchive = (*EmailArchiveAdapter)(nil)

func NewEmailArchiveAdapter(client *Client) *EmailArchiveAdapter {
	return &EmailArchiveAdapter{
		collection: client.Database().Collection(emailArchiveCollection),
	}
}

// EnsureIndexes creates the unique email_id index. Call once at startup.
func (a *EmailArchiveAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "received_at", Value: -1}},
		},
	})
	return err
}

// Save upserts on email id, so re-archiving during a re-sync is a no-op.
func (a *EmailArchiveAdapter) Save(ctx context.Context, email *out.ArchivedEmail) error {
	doc := emailDocument{
		EmailID:    email.EmailID,
		UserID:     email.UserID,
		From:       email.From,
		Subject:    email.Subject,
		ReceivedAt: email.ReceivedAt,
		HTML:       email.HTML,
		Text:       email.Text,
		ArchivedAt: time.Now(),
	}

	filter := bson.M{"email_id": email.EmailID}
	update := bson.M{"$setOnInsert": doc}
	_, err := a.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (a *EmailArchiveAdapter) Get(ctx context.Context, emailID string) (*out.ArchivedEmail, error) {
	var doc emailDocument
	err := a.collection.FindOne(ctx, bson.M{"email_id": emailID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, out.ErrNotFound
		}
		return nil, err
	}

	return &out.ArchivedEmail{
		EmailID:    doc.EmailID,
		UserID:     doc.UserID,
		From:       doc.From,
		Subject:    doc.Subject,
		ReceivedAt: doc.ReceivedAt,
		HTML:       doc.HTML,
		Text:       doc.Text,
	}, nil
}
