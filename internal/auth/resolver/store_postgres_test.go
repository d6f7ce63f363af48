//go:build integration

package resolver

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/davidmonro/fence/internal/db"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcpostgres.PostgresContainer
	sqlDB     *sql.DB
	store     *DBStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcpostgres.Run(s.ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("gateway"),
		tcpostgres.WithUsername("gateway"),
		tcpostgres.WithPassword("gateway"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.sqlDB, err = sql.Open("postgres", dsn)
	s.Require().NoError(err)
	s.Require().NoError(db.RunGatewayMigration(s.ctx, s.sqlDB))

	s.store = NewDBStore(&db.DB{DB: s.sqlDB})
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.sqlDB != nil {
		_ = s.sqlDB.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.sqlDB.ExecContext(s.ctx, `TRUNCATE idp_to_user, identity_providers, users CASCADE`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestMigrationIsIdempotent() {
	s.NoError(db.RunGatewayMigration(s.ctx, s.sqlDB))
}

func (s *PostgresStoreSuite) TestFindOrCreateUser() {
	first, err := s.store.FindOrCreateUser(s.ctx, "u@x.com", "google", "")
	s.Require().NoError(err)
	s.NotEmpty(first.ID)
	s.Empty(first.Email)
	s.Equal("google", first.IdPName)
	s.False(first.Registered())

	second, err := s.store.FindOrCreateUser(s.ctx, "u@x.com", "keycloak", "u@x.com")
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)
	s.Equal("u@x.com", second.Email)
	s.Equal("google", second.IdPName)
}

func (s *PostgresStoreSuite) TestRegisteredUser() {
	_, err := s.store.FindOrCreateUser(s.ctx, "reg@x.com", "google", "")
	s.Require().NoError(err)
	_, err = s.sqlDB.ExecContext(s.ctx,
		`UPDATE users SET additional_info = '{"registration_info": {"name": "R"}}' WHERE username = $1`,
		"reg@x.com")
	s.Require().NoError(err)

	u, err := s.store.FindOrCreateUser(s.ctx, "reg@x.com", "google", "")
	s.Require().NoError(err)
	s.True(u.Registered())
}

func (s *PostgresStoreSuite) TestCreateProviderConflict() {
	_, err := s.store.CreateProvider(s.ctx, IdentityProvider{Name: "ras"})
	s.Require().NoError(err)

	_, err = s.store.CreateProvider(s.ctx, IdentityProvider{Name: "ras"})
	s.ErrorIs(err, ErrConflict)

	_, err = s.store.FindProviderByName(s.ctx, "absent")
	s.ErrorIs(err, ErrNotFound)
}

func (s *PostgresStoreSuite) TestBindUpsertsOneRowPerSub() {
	user, err := s.store.FindOrCreateUser(s.ctx, "u@x.com", "ras", "")
	s.Require().NoError(err)
	mapper := NewMapper(s.store)

	_, err = mapper.Bind(s.ctx, user, "subject-1", "ras", map[string]any{"v": "1"})
	s.Require().NoError(err)
	_, err = mapper.Bind(s.ctx, user, "subject-1", "ras", map[string]any{"v": "2"})
	s.Require().NoError(err)

	var count int
	s.Require().NoError(s.sqlDB.QueryRowContext(s.ctx,
		`SELECT COUNT(*) FROM idp_to_user WHERE sub = $1`, "ras_subject-1").Scan(&count))
	s.Equal(1, count)

	stored, err := s.store.FindBindingBySub(s.ctx, "ras_subject-1")
	s.Require().NoError(err)
	s.Equal("2", stored.ExtraInfo["v"])
}

func (s *PostgresStoreSuite) TestBindRejectsOtherUser() {
	owner, err := s.store.FindOrCreateUser(s.ctx, "owner@x.com", "ras", "")
	s.Require().NoError(err)
	intruder, err := s.store.FindOrCreateUser(s.ctx, "intruder@x.com", "ras", "")
	s.Require().NoError(err)
	mapper := NewMapper(s.store)

	_, err = mapper.Bind(s.ctx, owner, "subject-1", "ras", nil)
	s.Require().NoError(err)
	_, err = mapper.Bind(s.ctx, intruder, "subject-1", "ras", nil)
	s.ErrorIs(err, ErrSubjectBound)
}

func (s *PostgresStoreSuite) TestConcurrentFirstCallbacksCreateOneProvider() {
	user, err := s.store.FindOrCreateUser(s.ctx, "u@x.com", "ras", "")
	s.Require().NoError(err)
	mapper := NewMapper(s.store)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = mapper.Bind(s.ctx, user, "subject-1", "brand-new", nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		s.NoError(err)
	}

	var providers, bindings int
	s.Require().NoError(s.sqlDB.QueryRowContext(s.ctx,
		`SELECT COUNT(*) FROM identity_providers WHERE name = 'brand-new'`).Scan(&providers))
	s.Require().NoError(s.sqlDB.QueryRowContext(s.ctx,
		`SELECT COUNT(*) FROM idp_to_user WHERE sub = 'brand-new_subject-1'`).Scan(&bindings))
	s.Equal(1, providers)
	s.Equal(1, bindings)
}
