package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mkarlin14/quizroom/internal/answer"
	"github.com/mkarlin14/quizroom/internal/bus"
	"github.com/mkarlin14/quizroom/internal/catalog"
	"github.com/mkarlin14/quizroom/internal/gateway"
	"github.com/mkarlin14/quizroom/internal/identity"
	"github.com/mkarlin14/quizroom/internal/livestore"
	"github.com/mkarlin14/quizroom/internal/room"
	"github.com/mkarlin14/quizroom/internal/roomcode"
	"github.com/mkarlin14/quizroom/internal/roomlock"
	"github.com/mkarlin14/quizroom/internal/session"
)

// Services holds the wired application graph.
type Services struct {
	Rooms     *room.App
	Conductor *session.Conductor
	Gateway   *gateway.Service

	natsConn *nats.Conn
}

// Close releases external connections held by the graph.
func (s *Services) Close() {
	if s.natsConn != nil {
		s.natsConn.Close()
	}
}

// setupServices wires the dependency graph bottom-up:
// database -> repositories -> live store/bus -> apps -> gateway.
func setupServices(ctx context.Context, cfg *Config, pool *pgxpool.Pool, seed int64) (*Services, error) {
	var natsConn *nats.Conn
	if cfg.store == storeNATS || cfg.bus == busNATS {
		natsBus, err := bus.Connect(cfg.natsURL)
		if err != nil {
			return nil, err
		}
		natsConn = natsBus.Conn()
	}

	var eventBus bus.Bus
	if cfg.bus == busNATS {
		eventBus = bus.NewNATSBus(natsConn)
	} else {
		eventBus = bus.NewInProcBus()
	}

	var store livestore.Store
	if cfg.store == storeNATS {
		js, err := jetstream.New(natsConn)
		if err != nil {
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		store, err = livestore.NewKVStore(ctx, js, livestore.DefaultKVConfig())
		if err != nil {
			return nil, err
		}
	} else {
		store = livestore.NewMemoryStore()
	}

	log.Info().
		Str("store", cfg.store).
		Str("bus", cfg.bus).
		Msg("live state backing configured")

	roomRepo := room.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	identityRepo := identity.NewRepository(pool)
	answerRepo := answer.NewRepository(pool)

	clock := clockwork.NewRealClock()
	rng := rand.New(rand.NewSource(seed))
	locks := roomlock.NewRegistry()
	codes := roomcode.NewGenerator(rng)

	rooms := room.NewApp(store, roomRepo, identityRepo, codes, locks, eventBus, clock)

	sessionCfg, err := loadSessionConfig(cfg.gameConfigPath)
	if err != nil {
		return nil, err
	}
	conductor := session.NewConductor(store, catalogRepo, roomRepo, answerRepo, locks, eventBus, clock, rng, sessionCfg)

	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	gatewayService := gateway.NewService(manager, rooms, conductor, catalogRepo, eventBus, clock, gateway.Config{
		JoinBaseURL: cfg.joinBaseURL,
	})

	return &Services{
		Rooms:     rooms,
		Conductor: conductor,
		Gateway:   gatewayService,
		natsConn:  natsConn,
	}, nil
}
