package audit

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// MongoConfig MongoDB 后端配置
type MongoConfig struct {
	URI        string `yaml:"uri" json:"uri" env:"URI"`
	Database   string `yaml:"database" json:"database" env:"DATABASE"`
	Collection string `yaml:"collection" json:"collection" env:"COLLECTION"`
}

// MongoStore 基于 MongoDB 的审计存储
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore 连接 MongoDB 并确保索引存在
func NewMongoStore(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "hido"
	}
	if cfg.Collection == "" {
		cfg.Collection = "audit_entries"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		logger: logger.With(zap.String("component", "audit_mongo_store")),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	s.logger.Info("mongo audit store ready",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection))
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sequence", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "decision_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create audit indexes: %w", err)
	}
	return nil
}

// Append 插入一条记录
func (s *MongoStore) Append(ctx context.Context, entry Entry) error {
	if _, err := s.coll.InsertOne(ctx, entry); err != nil {
		s.logger.Error("failed to insert audit entry",
			zap.Uint64("sequence", entry.Sequence),
			zap.String("decision_id", entry.DecisionID),
			zap.Error(err))
		return fmt.Errorf("insert audit entry %d: %w", entry.Sequence, err)
	}
	return nil
}

// Get 按决策 ID 查询
func (s *MongoStore) Get(ctx context.Context, decisionID string) (Entry, error) {
	var e Entry
	err := s.coll.FindOne(ctx, bson.D{{Key: "decision_id", Value: decisionID}}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Entry{}, notFound(decisionID)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("query audit entry %s: %w", decisionID, err)
	}
	return e, nil
}

// Last 返回序号最大的记录
func (s *MongoStore) Last(ctx context.Context) (Entry, error) {
	var e Entry
	opts := options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}})
	err := s.coll.FindOne(ctx, bson.D{}, opts).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("query last audit entry: %w", err)
	}
	return e, nil
}

// List 按条件查询
func (s *MongoStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := bson.D{}
	if filter.DecisionType != "" {
		query = append(query, bson.E{Key: "decision_type", Value: filter.DecisionType})
	}
	if filter.EscalatedOnly {
		query = append(query, bson.E{Key: "requires_human_approval", Value: true})
	}
	if !filter.Since.IsZero() {
		query = append(query, bson.E{Key: "created_at", Value: bson.D{{Key: "$gte", Value: filter.Since}}})
	}
	if filter.AfterSequence > 0 {
		query = append(query, bson.E{Key: "sequence", Value: bson.D{{Key: "$gt", Value: filter.AfterSequence}}})
	}

	opts := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	entries := make([]Entry, 0)
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode audit entries: %w", err)
	}
	return entries, nil
}

// Count 返回记录数
func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Close 断开客户端
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
