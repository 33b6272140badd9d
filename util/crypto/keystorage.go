package crypto

import "sync"

// KeyStorage decodes actor ids into public keys, caching the result.
// Implementations are safe for concurrent use.
type KeyStorage interface {
	PubKeyFromAccount(account string) (PubKey, error)
}

func NewKeyStorage() KeyStorage {
	return &keyStorage{keys: make(map[string]PubKey)}
}

type keyStorage struct {
	mu   sync.RWMutex
	keys map[string]PubKey
}

func (k *keyStorage) PubKeyFromAccount(account string) (PubKey, error) {
	k.mu.RLock()
	key, ok := k.keys[account]
	k.mu.RUnlock()
	if ok {
		return key, nil
	}
	decoded, err := DecodeAccount(account)
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if key, ok = k.keys[account]; ok {
		return key, nil
	}
	k.keys[account] = decoded
	return decoded, nil
}
