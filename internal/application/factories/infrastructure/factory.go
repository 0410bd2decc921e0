package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/RnD-Experts-Team/PNE-EO/internal/config"
	natsinfra "github.com/RnD-Experts-Team/PNE-EO/internal/infrastructure/nats"
	"github.com/RnD-Experts-Team/PNE-EO/internal/infrastructure/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
)

type Factory struct {
	cfg     *config.Config
	pgPool  *pgxpool.Pool
	natsCon *nats.Conn
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		cfg: cfg,
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	// Retry connection up to 5 times
	for i := 0; i < 5; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
		})
		if err == nil {
			break
		}
		fmt.Printf("Failed to connect to postgres (attempt %d/5): %v. Retrying in 2s...\n", i+1, err)
		time.Sleep(2 * time.Second)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) Nats() (*nats.Conn, error) {
	if f.natsCon != nil {
		return f.natsCon, nil
	}

	nc, err := natsinfra.NewClient(natsinfra.Config{
		Name:  f.cfg.App.Name,
		Host:  f.cfg.Nats.Host,
		Port:  f.cfg.Nats.Port,
		Token: f.cfg.Nats.Token,
		User:  f.cfg.Nats.User,
		Pass:  f.cfg.Nats.Pass,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init nats: %w", err)
	}

	f.natsCon = nc
	return nc, nil
}

func (f *Factory) Close() {
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.natsCon != nil {
		f.natsCon.Close()
	}
}
