package services

import (
	"context"
	"sync"

	"github.com/leafwise/leafwise-go/core"
)

// FakeCredentialStore is a test-only fake implementing core.CredentialStore.
// It stores values in a map and exposes error fields for behavior injection.
type FakeCredentialStore struct {
	mu     sync.RWMutex
	values map[string]string

	getErr    error
	setErr    error
	removeErr error

	// setErrOnKey fails only the write of one specific key, for torn-state
	// scenarios.
	setErrOnKey string
}

func NewFakeCredentialStore() *FakeCredentialStore {
	return &FakeCredentialStore{values: make(map[string]string)}
}

func (f *FakeCredentialStore) Get(_ context.Context, key string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	value, ok := f.values[key]
	if !ok {
		return "", core.ErrKeyNotFound
	}
	return value, nil
}

func (f *FakeCredentialStore) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	if f.setErrOnKey != "" && f.setErrOnKey == key {
		return core.ErrKeyNotFound
	}
	f.values[key] = value
	return nil
}

func (f *FakeCredentialStore) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.values, key)
	return nil
}

func (f *FakeCredentialStore) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.values)
}

// Seed writes a value without the error injection, for test setup.
func (f *FakeCredentialStore) Seed(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}

// FakeIdentityProvider is a test-only fake implementing
// core.IdentityProvider. It hands out a fixed federated token and counts
// sign-outs.
type FakeIdentityProvider struct {
	mu sync.Mutex

	token      string
	signInErr  error
	signUpErr  error
	signOutErr error

	signIns  int
	signUps  int
	signOuts int
}

func NewFakeIdentityProvider(token string) *FakeIdentityProvider {
	return &FakeIdentityProvider{token: token}
}

func (f *FakeIdentityProvider) SignIn(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signIns++
	if f.signInErr != nil {
		return "", f.signInErr
	}
	return f.token, nil
}

func (f *FakeIdentityProvider) SignUp(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signUps++
	if f.signUpErr != nil {
		return "", f.signUpErr
	}
	return f.token, nil
}

func (f *FakeIdentityProvider) SignOut(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	return f.signOutErr
}

func (f *FakeIdentityProvider) SignOuts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOuts
}
