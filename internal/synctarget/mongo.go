package synctarget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/models"
)

// mongoRecord is the document shape stored in each synced collection.
type mongoRecord struct {
	ID        string    `bson:"_id"`
	DeviceID  string    `bson:"device_id"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
	Version   int64     `bson:"version"`
	Deleted   bool      `bson:"deleted"`
	Payload   []byte    `bson:"payload"`
}

// MongoTarget syncs against a MongoDB database. Each logical table maps to a
// collection; upserts use ReplaceOne keyed by _id.
type MongoTarget struct {
	details *models.ConnectionDetails
	client  *mongo.Client
}

// NewMongoTarget builds an unconnected target from decrypted connection
// details.
func NewMongoTarget(details *models.ConnectionDetails) *MongoTarget {
	return &MongoTarget{details: details}
}

func (t *MongoTarget) uri() string {
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d/%s?authSource=admin",
		t.details.Username, t.details.Password,
		t.details.Host, t.details.Port, t.details.DatabaseName)
	if t.details.SSLEnabled {
		uri += "&tls=true"
	}
	return uri
}

// classifyMongoConnectErr maps a dial or ping failure to a sentinel. Server
// code 18 is AuthenticationFailed; handshake failures wrap the driver's
// internal auth error, which only surfaces through its message, so those are
// matched on the server error name. Either way the engine treats the failure
// as permanent instead of retrying.
func classifyMongoConnectErr(err error) error {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 18 {
		return fmt.Errorf("%w: %v", common.ErrAuthenticationFailed, err)
	}
	if strings.Contains(err.Error(), "AuthenticationFailed") {
		return fmt.Errorf("%w: %v", common.ErrAuthenticationFailed, err)
	}
	return fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
}

func (t *MongoTarget) Connect(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(t.uri()))
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return classifyMongoConnectErr(err)
	}
	t.client = client
	return nil
}

func (t *MongoTarget) TestConnection(ctx context.Context) error {
	if t.client != nil {
		if err := t.client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
		}
		return nil
	}
	if err := t.Connect(ctx); err != nil {
		return err
	}
	return t.Close(ctx)
}

func (t *MongoTarget) Close(ctx context.Context) error {
	if t.client == nil {
		return nil
	}
	err := t.client.Disconnect(ctx)
	t.client = nil
	return err
}

func (t *MongoTarget) collection(table string) (*mongo.Collection, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	return t.client.Database(t.details.DatabaseName).Collection(table), nil
}

func (t *MongoTarget) PushRecords(ctx context.Context, table string, records []*models.SyncRecord) (int, error) {
	if t.client == nil {
		return 0, common.ErrConnectionFailed
	}
	coll, err := t.collection(table)
	if err != nil {
		return 0, err
	}

	count := 0
	opts := options.Replace().SetUpsert(true)
	for _, rec := range records {
		doc := mongoRecord{
			ID:        rec.ID,
			DeviceID:  rec.DeviceID,
			CreatedAt: rec.CreatedAt.UTC(),
			UpdatedAt: rec.UpdatedAt.UTC(),
			Version:   rec.Version,
			Deleted:   rec.Deleted,
			Payload:   rec.Payload,
		}
		if _, err := coll.ReplaceOne(ctx, bson.M{"_id": rec.ID}, doc, opts); err != nil {
			return count, fmt.Errorf("%w: push %s/%s: %v", common.ErrQueryFailed, table, rec.ID, err)
		}
		count++
	}
	return count, nil
}

func (t *MongoTarget) PullRecords(ctx context.Context, table string, since *time.Time) ([]*models.SyncRecord, error) {
	if t.client == nil {
		return nil, common.ErrConnectionFailed
	}
	coll, err := t.collection(table)
	if err != nil {
		return nil, err
	}

	filter := bson.M{}
	if since != nil {
		filter["updated_at"] = bson.M{"$gt": since.UTC()}
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}})

	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: pull %s: %v", common.ErrQueryFailed, table, err)
	}
	defer cur.Close(ctx)

	var result []*models.SyncRecord
	for cur.Next(ctx) {
		var doc mongoRecord
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", common.ErrQueryFailed, table, err)
		}
		result = append(result, &models.SyncRecord{
			ID:        doc.ID,
			Table:     table,
			DeviceID:  doc.DeviceID,
			CreatedAt: doc.CreatedAt.UTC(),
			UpdatedAt: doc.UpdatedAt.UTC(),
			Version:   doc.Version,
			Deleted:   doc.Deleted,
			Payload:   doc.Payload,
		})
	}
	return result, cur.Err()
}

func (t *MongoTarget) GetRecordVersions(ctx context.Context, table string, ids []string) (map[string]int64, error) {
	if t.client == nil {
		return nil, common.ErrConnectionFailed
	}
	coll, err := t.collection(table)
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	proj := options.Find().SetProjection(bson.M{"_id": 1, "version": 1})
	cur, err := coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, proj)
	if err != nil {
		return nil, fmt.Errorf("%w: versions %s: %v", common.ErrQueryFailed, table, err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc struct {
			ID      string `bson:"_id"`
			Version int64  `bson:"version"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		result[doc.ID] = doc.Version
	}
	return result, cur.Err()
}
