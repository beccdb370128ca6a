// Package mongo persists transfer history and receiver settings.
package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lanshare/internal/domain"
)

type HistoryRepository struct {
	collection *mongo.Collection
}

type transferDoc struct {
	ID         string `bson:"_id"`
	Direction  string `bson:"direction"`
	PeerAddr   string `bson:"peerAddr"`
	PeerPort   int    `bson:"peerPort"`
	PeerName   string `bson:"peerName,omitempty"`
	FileCount  int    `bson:"fileCount"`
	TotalBytes int64  `bson:"totalBytes"`
	Status     string `bson:"status"`
	Reason     string `bson:"reason,omitempty"`
	DurationMS int64  `bson:"durationMs"`
	FinishedAt int64  `bson:"finishedAt"`
}

func NewHistoryRepository(client *mongo.Client, dbName string) *HistoryRepository {
	return &HistoryRepository{collection: client.Database(dbName).Collection("transfers")}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *HistoryRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "finishedAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

// Record upserts by session id so a retried sync never duplicates history.
func (r *HistoryRepository) Record(ctx context.Context, record domain.TransferRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	doc := toTransferDoc(record)
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]domain.TransferRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "finishedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []transferDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	records := make([]domain.TransferRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, fromTransferDoc(doc))
	}
	return records, nil
}

func toTransferDoc(r domain.TransferRecord) transferDoc {
	return transferDoc{
		ID:         string(r.ID),
		Direction:  string(r.Direction),
		PeerAddr:   r.Peer.Address,
		PeerPort:   r.Peer.Port,
		PeerName:   r.PeerName,
		FileCount:  r.FileCount,
		TotalBytes: r.TotalBytes,
		Status:     string(r.Status),
		Reason:     r.Reason,
		DurationMS: r.Duration.Milliseconds(),
		FinishedAt: r.FinishedAt.UTC().Unix(),
	}
}

func fromTransferDoc(doc transferDoc) domain.TransferRecord {
	return domain.TransferRecord{
		ID:         domain.SessionID(doc.ID),
		Direction:  domain.Direction(doc.Direction),
		Peer:       domain.PeerAddr{Address: doc.PeerAddr, Port: doc.PeerPort},
		PeerName:   doc.PeerName,
		FileCount:  doc.FileCount,
		TotalBytes: doc.TotalBytes,
		Status:     domain.SessionStatus(doc.Status),
		Reason:     doc.Reason,
		Duration:   time.Duration(doc.DurationMS) * time.Millisecond,
		FinishedAt: time.Unix(doc.FinishedAt, 0).UTC(),
	}
}
