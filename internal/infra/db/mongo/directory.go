package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	domainchat "pingme/internal/domain/chat"
)

// Directory resolves user profiles from the users collection for chat list
// enrichment. The auth provider owns the accounts; this only reads the
// fields the list needs.
type Directory struct {
	users *mongo.Collection
}

func NewDirectory(client *Client) *Directory {
	return &Directory{users: client.DB.Collection("users")}
}

type profileDocument struct {
	ID          string `bson:"_id"`
	Username    string `bson:"username"`
	DisplayName string `bson:"display_name,omitempty"`
	AvatarURL   string `bson:"avatar_url,omitempty"`
}

func (d *Directory) Lookup(ctx context.Context, userID string) (domainchat.Profile, error) {
	var doc profileDocument
	if err := d.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		return domainchat.Profile{}, fmt.Errorf("mongo: lookup profile %s: %w", userID, err)
	}
	return domainchat.Profile{
		ID:          doc.ID,
		Username:    doc.Username,
		DisplayName: doc.DisplayName,
		AvatarURL:   doc.AvatarURL,
	}, nil
}
