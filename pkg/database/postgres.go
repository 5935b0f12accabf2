package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/academic-records/pkg/config"
)

const pingTimeout = 5 * time.Second

// Open returns a configured PostgreSQL pool for a single store.
func Open(cfg config.StoreConfig) (*sqlx.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("open %s store: %w", cfg.Name, config.ErrMissingStoreURL)
	}

	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Name, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	db.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.Name, err)
	}

	return db, nil
}

// Stores holds the three independently owned databases. There is no
// transaction spanning them; every write is scoped to exactly one handle.
type Stores struct {
	Identity *sqlx.DB
	Academic *sqlx.DB
	Support  *sqlx.DB
}

// OpenStores opens all three pools, closing whatever was opened if one fails.
func OpenStores(cfg *config.Config) (*Stores, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Stores{}
	var err error
	if s.Identity, err = Open(cfg.Identity); err != nil {
		return nil, err
	}
	if s.Academic, err = Open(cfg.Academic); err != nil {
		_ = s.Close()
		return nil, err
	}
	if s.Support, err = Open(cfg.Support); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Get returns the handle for a store name.
func (s *Stores) Get(name string) (*sqlx.DB, error) {
	switch name {
	case config.StoreIdentity:
		return s.Identity, nil
	case config.StoreAcademic:
		return s.Academic, nil
	case config.StoreSupport:
		return s.Support, nil
	}
	return nil, fmt.Errorf("unknown store %q", name)
}

// Ping checks connectivity of every store.
func (s *Stores) Ping(ctx context.Context) error {
	var errs []error
	for name, db := range map[string]*sqlx.DB{
		config.StoreIdentity: s.Identity,
		config.StoreAcademic: s.Academic,
		config.StoreSupport:  s.Support,
	} {
		if db == nil {
			errs = append(errs, fmt.Errorf("%s store not opened", name))
			continue
		}
		if err := db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ping %s store: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases every opened pool.
func (s *Stores) Close() error {
	var errs []error
	for _, db := range []*sqlx.DB{s.Identity, s.Academic, s.Support} {
		if db != nil {
			errs = append(errs, db.Close())
		}
	}
	return errors.Join(errs...)
}
