package store

import (
	"context"
	"encoding/json"

	"github.com/Li-Victor/Twittter/internal/model"
)

// CredentialKey is the slot the access credential lives under.
const CredentialKey = "twitter_credentials"

// CredentialStore persists the single access credential.
type CredentialStore struct {
	kv KV
}

func NewCredentialStore(kv KV) *CredentialStore {
	return &CredentialStore{kv: kv}
}

// Save overwrites the stored credential. Partial credentials are refused.
func (s *CredentialStore) Save(ctx context.Context, c model.Credential) error {
	if !c.Valid() {
		return &Error{Operation: "save", Key: CredentialKey, Message: "token and token secret are both required"}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return &Error{Operation: "save", Key: CredentialKey, Cause: err}
	}
	if err := s.kv.Set(ctx, CredentialKey, data); err != nil {
		return &Error{Operation: "save", Key: CredentialKey, Cause: err}
	}
	return nil
}

// Load returns nil, nil when nothing is stored. A record that does not decode
// or lacks either half is an error, never a half-populated credential.
func (s *CredentialStore) Load(ctx context.Context) (*model.Credential, error) {
	data, ok, err := s.kv.Get(ctx, CredentialKey)
	if err != nil {
		return nil, &Error{Operation: "load", Key: CredentialKey, Cause: err}
	}
	if !ok {
		return nil, nil
	}
	var c model.Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, &Error{Operation: "load", Key: CredentialKey, Message: "corrupt record", Cause: err}
	}
	if !c.Valid() {
		return nil, &Error{Operation: "load", Key: CredentialKey, Message: "incomplete record"}
	}
	return &c, nil
}

// Clear removes the stored credential. Clearing an empty store succeeds.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, CredentialKey); err != nil {
		return &Error{Operation: "delete", Key: CredentialKey, Cause: err}
	}
	return nil
}
