// Package account owns the local actor's signing key. The key location
// is injected through config; a missing key file is created on first run.
package account

import (
	"errors"
	"os"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/cobkit/cobkit/app"
	"github.com/cobkit/cobkit/app/logger"
	"github.com/cobkit/cobkit/config"
	"github.com/cobkit/cobkit/util/crypto"
)

const CName = "cob.account"

var log = logger.NewNamed(CName)

var ErrNoKeyConfigured = errors.New("no account key configured")

type configSource interface {
	AccountKeyPath() string
}

type Service interface {
	app.Component
	// Key returns the local signing key, nil when none is configured
	Key() crypto.PrivKey
	// Account returns the local actor id, empty when no key is configured
	Account() string
}

func New() Service {
	return &service{}
}

type service struct {
	key crypto.PrivKey
}

func (s *service) Init(a *app.App) (err error) {
	path := a.MustComponent(config.CName).(configSource).AccountKeyPath()
	if path == "" {
		// read-only mode: ingest and fold, but never propose
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s.generate(path)
	}
	if err != nil {
		return err
	}
	raw, err := base58.Decode(string(data))
	if err != nil {
		return err
	}
	s.key, err = crypto.UnmarshalEd25519PrivateKey(raw)
	return err
}

func (s *service) generate(path string) (err error) {
	key, _, err := crypto.GenerateRandomEd25519KeyPair()
	if err != nil {
		return
	}
	raw, err := key.Raw()
	if err != nil {
		return
	}
	if err = os.WriteFile(path, []byte(base58.Encode(raw)), 0600); err != nil {
		return
	}
	s.key = key
	log.Info("generated new account key", zap.String("account", key.GetPublic().Account()))
	return
}

func (s *service) Name() string {
	return CName
}

func (s *service) Key() crypto.PrivKey {
	return s.key
}

func (s *service) Account() string {
	if s.key == nil {
		return ""
	}
	return s.key.GetPublic().Account()
}
