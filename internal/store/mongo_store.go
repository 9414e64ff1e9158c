package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/annel0/world-persist/internal/vec"
)

// MongoConfig contains connection settings for the MongoDB world store.
type MongoConfig struct {
	URI      string // e.g. mongodb://localhost:27017
	Database string // e.g. worldpersist
}

// MongoStore implements Store on a MongoDB backend.
//
// Unlike the SQL and Badger backends there is no rolling transaction:
// every write is durable on its own, so CommitAndBegin is a no-op. The
// batching contract degrades to per-operation durability, which is still
// within the "applied before the next commit boundary" guarantee.
type MongoStore struct {
	client     *mongo.Client
	blocks     *mongo.Collection
	lights     *mongo.Collection
	damage     *mongo.Collection
	keys       *mongo.Collection
	signs      *mongo.Collection
	state      *mongo.Collection
	ctxTimeout time.Duration
}

// NewMongoStore establishes a connection and ensures indexes.
func NewMongoStore(cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "worldpersist"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:     client,
		blocks:     db.Collection("blocks"),
		lights:     db.Collection("lights"),
		damage:     db.Collection("damage"),
		keys:       db.Collection("keys"),
		signs:      db.Collection("signs"),
		state:      db.Collection("state"),
		ctxTimeout: 5 * time.Second,
	}

	if err := s.ensureIndexes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.ctxTimeout)
	defer cancel()

	pqxyz := mongo.IndexModel{
		Keys: bson.D{
			{Key: "p", Value: 1}, {Key: "q", Value: 1},
			{Key: "x", Value: 1}, {Key: "y", Value: 1}, {Key: "z", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("pqxyz_unique"),
	}
	for _, coll := range []*mongo.Collection{s.blocks, s.lights, s.damage} {
		if _, err := coll.Indexes().CreateOne(ctx, pqxyz); err != nil {
			return err
		}
	}

	pq := mongo.IndexModel{
		Keys:    bson.D{{Key: "p", Value: 1}, {Key: "q", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("pq_unique"),
	}
	if _, err := s.keys.Indexes().CreateOne(ctx, pq); err != nil {
		return err
	}

	signIdx := mongo.IndexModel{
		Keys: bson.D{
			{Key: "x", Value: 1}, {Key: "y", Value: 1}, {Key: "z", Value: 1},
			{Key: "face", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("xyzface_unique"),
	}
	if _, err := s.signs.Indexes().CreateOne(ctx, signIdx); err != nil {
		return err
	}
	return nil
}

// upsertCell writes one (p,q,x,y,z) -> w document.
func (s *MongoStore) upsertCell(ctx context.Context, coll *mongo.Collection, p, q int, pos vec.Vec3, w int) error {
	filter := bson.M{"p": p, "q": q, "x": pos.X, "y": pos.Y, "z": pos.Z}
	update := bson.M{"$set": bson.M{"w": w}}
	_, err := coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) InsertBlock(ctx context.Context, p, q int, pos vec.Vec3, w int) error {
	return s.upsertCell(ctx, s.blocks, p, q, pos, w)
}

func (s *MongoStore) InsertLight(ctx context.Context, p, q int, pos vec.Vec3, w int) error {
	return s.upsertCell(ctx, s.lights, p, q, pos, w)
}

func (s *MongoStore) InsertBlockDamage(ctx context.Context, p, q int, pos vec.Vec3, damage int) error {
	return s.upsertCell(ctx, s.damage, p, q, pos, damage)
}

func (s *MongoStore) TrimZeroDamage(ctx context.Context, p, q int) error {
	_, err := s.damage.DeleteMany(ctx, bson.M{"p": p, "q": q, "w": 0})
	return err
}

func (s *MongoStore) SetKey(ctx context.Context, p, q, key int) error {
	filter := bson.M{"p": p, "q": q}
	update := bson.M{"$set": bson.M{"k": key}}
	_, err := s.keys.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// CommitAndBegin is a no-op: MongoDB writes are durable per operation.
func (s *MongoStore) CommitAndBegin(ctx context.Context) error {
	return ctx.Err()
}

func (s *MongoStore) InsertSign(ctx context.Context, p, q int, pos vec.Vec3, face int, text string) error {
	filter := bson.M{"x": pos.X, "y": pos.Y, "z": pos.Z, "face": face}
	update := bson.M{"$set": bson.M{"p": p, "q": q, "text": text}}
	_, err := s.signs.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) DeleteSign(ctx context.Context, pos vec.Vec3, face int) error {
	_, err := s.signs.DeleteOne(ctx, bson.M{"x": pos.X, "y": pos.Y, "z": pos.Z, "face": face})
	return err
}

func (s *MongoStore) DeleteSigns(ctx context.Context, pos vec.Vec3) error {
	_, err := s.signs.DeleteMany(ctx, bson.M{"x": pos.X, "y": pos.Y, "z": pos.Z})
	return err
}

func (s *MongoStore) DeleteAllSigns(ctx context.Context) error {
	_, err := s.signs.DeleteMany(ctx, bson.M{})
	return err
}

func (s *MongoStore) SaveState(ctx context.Context, st PlayerState) error {
	flying := 0
	if st.Flying {
		flying = 1
	}
	update := bson.M{"$set": bson.M{
		"x": st.X, "y": st.Y, "z": st.Z,
		"rx": st.RX, "ry": st.RY, "flying": flying,
	}}
	_, err := s.state.UpdateOne(ctx, bson.M{"_id": "player"}, update, options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) LoadState(ctx context.Context) (PlayerState, bool, error) {
	var doc struct {
		X      float64 `bson:"x"`
		Y      float64 `bson:"y"`
		Z      float64 `bson:"z"`
		RX     float64 `bson:"rx"`
		RY     float64 `bson:"ry"`
		Flying int     `bson:"flying"`
	}
	err := s.state.FindOne(ctx, bson.M{"_id": "player"}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return PlayerState{}, false, nil
	}
	if err != nil {
		return PlayerState{}, false, err
	}
	return PlayerState{X: doc.X, Y: doc.Y, Z: doc.Z, RX: doc.RX, RY: doc.RY, Flying: doc.Flying != 0}, true, nil
}

func (s *MongoStore) loadCells(ctx context.Context, coll *mongo.Collection, p, q int) ([]BlockRow, error) {
	cur, err := coll.Find(ctx, bson.M{"p": p, "q": q})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []BlockRow
	for cur.Next(ctx) {
		var doc struct {
			X int `bson:"x"`
			Y int `bson:"y"`
			Z int `bson:"z"`
			W int `bson:"w"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		rows = append(rows, BlockRow{Pos: vec.Vec3{X: doc.X, Y: doc.Y, Z: doc.Z}, W: doc.W})
	}
	return rows, cur.Err()
}

func (s *MongoStore) LoadBlocks(ctx context.Context, p, q int) ([]BlockRow, error) {
	return s.loadCells(ctx, s.blocks, p, q)
}

func (s *MongoStore) LoadLights(ctx context.Context, p, q int) ([]BlockRow, error) {
	return s.loadCells(ctx, s.lights, p, q)
}

func (s *MongoStore) LoadDamage(ctx context.Context, p, q int) ([]DamageRow, error) {
	rows, err := s.loadCells(ctx, s.damage, p, q)
	if err != nil {
		return nil, err
	}
	result := make([]DamageRow, 0, len(rows))
	for _, row := range rows {
		result = append(result, DamageRow{Pos: row.Pos, Damage: row.W})
	}
	return result, nil
}

func (s *MongoStore) LoadSigns(ctx context.Context, p, q int) ([]SignRow, error) {
	cur, err := s.signs.Find(ctx, bson.M{"p": p, "q": q})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []SignRow
	for cur.Next(ctx) {
		var doc struct {
			X    int    `bson:"x"`
			Y    int    `bson:"y"`
			Z    int    `bson:"z"`
			Face int    `bson:"face"`
			Text string `bson:"text"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		rows = append(rows, SignRow{Pos: vec.Vec3{X: doc.X, Y: doc.Y, Z: doc.Z}, Face: doc.Face, Text: doc.Text})
	}
	return rows, cur.Err()
}

func (s *MongoStore) GetKey(ctx context.Context, p, q int) (int, error) {
	var doc struct {
		K int `bson:"k"`
	}
	err := s.keys.FindOne(ctx, bson.M{"p": p, "q": q}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.K, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.ctxTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
