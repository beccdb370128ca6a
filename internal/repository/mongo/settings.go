package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lanshare/internal/domain"
)

const receiverSettingsID = "receiver"

type receiverSettingsDoc struct {
	ID               string `bson:"_id"`
	SaveDir          string `bson:"saveDir"`
	AutoAccept       bool   `bson:"autoAccept"`
	OverwriteFiles   bool   `bson:"overwriteFiles"`
	CreateSubfolders bool   `bson:"createSubfolders"`
	SkipVerify       bool   `bson:"skipVerify"`
	UpdatedAt        int64  `bson:"updatedAt"`
}

type SettingsRepository struct {
	collection *mongo.Collection
}

func NewSettingsRepository(client *mongo.Client, dbName string) *SettingsRepository {
	return &SettingsRepository{collection: client.Database(dbName).Collection("settings")}
}

func (r *SettingsRepository) GetReceiverSettings(ctx context.Context) (domain.ReceiverSettings, bool, error) {
	var doc receiverSettingsDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": receiverSettingsID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ReceiverSettings{}, false, nil
		}
		return domain.ReceiverSettings{}, false, err
	}
	return domain.ReceiverSettings{
		SaveDir:          doc.SaveDir,
		AutoAccept:       doc.AutoAccept,
		OverwriteFiles:   doc.OverwriteFiles,
		CreateSubfolders: doc.CreateSubfolders,
		SkipVerify:       doc.SkipVerify,
	}, true, nil
}

func (r *SettingsRepository) PutReceiverSettings(ctx context.Context, settings domain.ReceiverSettings) error {
	update := bson.M{
		"$set": bson.M{
			"saveDir":          settings.SaveDir,
			"autoAccept":       settings.AutoAccept,
			"overwriteFiles":   settings.OverwriteFiles,
			"createSubfolders": settings.CreateSubfolders,
			"skipVerify":       settings.SkipVerify,
			"updatedAt":        time.Now().Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": receiverSettingsID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}
