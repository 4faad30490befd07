// Package mongosource reads member snapshots and the reward configuration from
// the community MongoDB database.
package mongosource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/PaulFidika/rolesync/core"
	"github.com/PaulFidika/rolesync/policy"
)

// Config names the database and collections to read.
type Config struct {
	URI               string
	Database          string
	PlayersCollection string
	ConfigsCollection string
	// ConnectTimeout bounds server selection. Defaults to 5s.
	ConnectTimeout time.Duration
}

func (c Config) normalized() Config {
	if c.Database == "" {
		c.Database = "admin"
	}
	if c.PlayersCollection == "" {
		c.PlayersCollection = "players"
	}
	if c.ConfigsCollection == "" {
		c.ConfigsCollection = "configs"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	return c
}

// Source implements core.SubjectSource.
type Source struct {
	client  *mongo.Client
	players *mongo.Collection
	configs *mongo.Collection
	log     logrus.FieldLogger
}

// Connect dials MongoDB and pings it once.
func Connect(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Source, error) {
	cfg = cfg.normalized()
	if cfg.URI == "" {
		return nil, errors.New("mongodb uri is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	opts := options.Client().ApplyURI(cfg.URI).SetServerSelectionTimeout(cfg.ConnectTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	log.Info("Connected successfully to MongoDB")
	db := client.Database(cfg.Database)
	return &Source{
		client:  client,
		players: db.Collection(cfg.PlayersCollection),
		configs: db.Collection(cfg.ConfigsCollection),
		log:     log,
	}, nil
}

// Close disconnects the client.
func (s *Source) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// playerDoc is the stored shape of one member.
type playerDoc struct {
	DiscordUserID string   `bson:"discord_user_id"`
	SteamID       string   `bson:"steamid64"`
	Roles         []string `bson:"discord_roles_ids"`
	SeedingPoints float64  `bson:"seeding_points"`
}

func (d playerDoc) subject() core.Subject {
	return core.Subject{ID: d.DiscordUserID, CorrelationID: d.SteamID, Roles: d.Roles, Points: d.SeedingPoints}
}

func (s *Source) FetchSubjectsWithRole(ctx context.Context, roleID string) ([]core.Subject, error) {
	cur, err := s.players.Find(ctx, bson.M{"discord_roles_ids": roleID})
	if err != nil {
		return nil, fmt.Errorf("find members: %w", err)
	}
	var docs []playerDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	out := make([]core.Subject, 0, len(docs))
	for _, d := range docs {
		if d.DiscordUserID == "" {
			continue
		}
		out = append(out, d.subject())
	}
	if len(out) == 0 {
		s.log.Infof("No data found for role: %s", roleID)
	}
	return out, nil
}

// configDoc is the stored shape of a reward configuration.
type configDoc struct {
	Category string `bson:"category"`
	Config   struct {
		RewardNeededTime *struct {
			Value  *float64 `bson:"value"`
			Option *float64 `bson:"option"`
		} `bson:"reward_needed_time"`
	} `bson:"config"`
}

func (d configDoc) points() (int, bool) {
	rnt := d.Config.RewardNeededTime
	if rnt == nil || rnt.Value == nil || rnt.Option == nil {
		return 0, false
	}
	return policy.RewardPoints(*rnt.Value, *rnt.Option)
}

func (s *Source) FetchRewardThreshold(ctx context.Context, category string) (int, bool, error) {
	var doc configDoc
	err := s.configs.FindOne(ctx, bson.M{"category": category}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		s.log.Infof("No configuration found for category: %s", category)
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find reward config: %w", err)
	}
	points, ok := doc.points()
	if !ok {
		s.log.Info("Invalid reward_needed_time configuration: missing value or option")
		return 0, false, nil
	}
	return points, true, nil
}
