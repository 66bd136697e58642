package container

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tolmv/elasticsearch/internal/config"
	"github.com/tolmv/elasticsearch/internal/feed"
	"github.com/tolmv/elasticsearch/internal/repository"
	"github.com/tolmv/elasticsearch/internal/search"
	"github.com/tolmv/elasticsearch/internal/service"
	"github.com/tolmv/elasticsearch/internal/state"
)

// Container holds all initialized components
type Container struct {
	Config     *config.Config
	Repository repository.ProductRepository
	Index      search.ProductIndex
	Tracker    state.RunTracker

	Service *service.Service

	db     *pgxpool.Pool
	redis  *redis.Client
	source *feed.Source
}

// New creates a new container with all dependencies initialized. A store
// that cannot be reached is fatal: everything already opened is released and
// the error is returned.
func New(cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	db, err := pgxpool.New(context.Background(), cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	container.db = db

	index, err := search.New(search.Config{
		URL:                  cfg.Elasticsearch.URL,
		Index:                cfg.Elasticsearch.Index,
		MaxRequestsPerSecond: cfg.Elasticsearch.MaxRequestsPerSecond,
	}, nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	container.Index = index

	tracker := state.NewNoopRunTracker()
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})
		container.redis = rdb
		tracker = state.NewRedisRunTracker(rdb)
	}
	container.Tracker = tracker

	if err := container.checkConnections(); err != nil {
		container.releaseClients()
		return nil, err
	}

	repo := repository.NewProductRepository(db)
	container.Repository = repo

	source := feed.NewSource(
		cfg.Feed.Path,
		time.Duration(cfg.Feed.Timeout)*time.Second,
		cfg.Feed.MaxRetries,
	)
	container.source = source

	svc, err := service.NewService(repo, index, feed.NewReader(source), tracker, cfg.Pipeline)
	if err != nil {
		container.releaseClients()
		return nil, err
	}
	container.Service = svc

	return container, nil
}

// checkConnections verifies every configured backend concurrently.
func (c *Container) checkConnections() error {
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		if err := c.db.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		log.Info("✅ Connected to PostgreSQL successfully")
		return nil
	})

	g.Go(func() error {
		if err := c.Index.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
		}
		log.Info("✅ Connected to Elasticsearch successfully")
		return nil
	})

	if c.redis != nil {
		g.Go(func() error {
			if _, err := c.redis.Ping(ctx).Result(); err != nil {
				return fmt.Errorf("failed to connect to Redis: %w", err)
			}
			log.Info("✅ Connected to Redis successfully")
			return nil
		})
	}

	return g.Wait()
}

// Run executes a full matching run
func (c *Container) Run(ctx context.Context) error {
	return c.Service.Run(ctx)
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.Service != nil {
		c.Service.Release()
	}
	if c.source != nil {
		if err := c.source.Close(); err != nil {
			log.Warnf("Failed to remove downloaded feed: %v", err)
		}
	}
	c.releaseClients()

	log.Info("Container shut down successfully")
	return nil
}

func (c *Container) releaseClients() {
	if c.db != nil {
		c.db.Close()
	}
	if c.Index != nil {
		c.Index.Close()
	}
	if c.redis != nil {
		c.redis.Close()
	}
}
