package storage

import (
	"context"

	"github.com/cobkit/cobkit/app"
	"github.com/cobkit/cobkit/app/logger"
	"github.com/cobkit/cobkit/config"
)

const CName = "cob.storage"

var log = logger.NewNamed(CName)

type configSource interface {
	StoragePath() string
}

// Service is the app component owning the operation store. The storage
// location comes from the injected config, never from ambient state.
type Service interface {
	app.ComponentRunnable
	Store() OpStore
}

func New() Service {
	return &service{}
}

type service struct {
	path  string
	store OpStore
}

func (s *service) Init(a *app.App) (err error) {
	s.path = a.MustComponent(config.CName).(configSource).StoragePath()
	return
}

func (s *service) Name() string {
	return CName
}

func (s *service) Run(ctx context.Context) (err error) {
	if s.path == "" {
		// no configured path means an ephemeral store
		s.store = NewInMemoryStore()
		return
	}
	s.store, err = NewPebbleStore(s.path)
	return
}

func (s *service) Store() OpStore {
	return s.store
}

func (s *service) Close(ctx context.Context) (err error) {
	if s.store == nil {
		return
	}
	return s.store.Close()
}
