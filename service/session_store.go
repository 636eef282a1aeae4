package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/layer-3/esrlink/core"
)

// Sessions of an identifier are kept as one body per (auth, chain) plus a
// list of keys ordered most recently used first. Updates to the list are
// read-modify-write and not serialized across concurrent callers.

func storageKey(identifier string, parts ...string) string {
	return strings.Join(append([]string{identifier}, parts...), "-")
}

func listKey(identifier string) string {
	return storageKey(identifier, "list")
}

func bodyKey(identifier string, auth core.PermissionLevel, chainID core.ChainID) string {
	return storageKey(identifier, auth.String(), chainID.String())
}

// ListSessions returns the session keys of identifier, most recently used first
func (l *Link) ListSessions(ctx context.Context, identifier string) ([]core.SessionKey, error) {
	if l.storage == nil {
		return nil, core.ErrNoStorage
	}
	data, found, err := l.storage.Read(ctx, listKey(identifier))
	if err != nil {
		return nil, fmt.Errorf("failed to read session list: %w", err)
	}
	if !found || data == "" {
		return []core.SessionKey{}, nil
	}
	var list []core.SessionKey
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("%w: session list: %v", core.ErrInvalidSessionData, err)
	}
	if list == nil {
		list = []core.SessionKey{}
	}
	return list, nil
}

// touchSession moves the key to the front of the list, or drops it when remove is set
func (l *Link) touchSession(ctx context.Context, identifier string, key core.SessionKey, remove bool) error {
	list, err := l.ListSessions(ctx, identifier)
	if err != nil {
		return err
	}
	updated := make([]core.SessionKey, 0, len(list)+1)
	if !remove {
		updated = append(updated, key)
	}
	for _, item := range list {
		if !item.Equal(key) {
			updated = append(updated, item)
		}
	}
	data, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("failed to marshal session list: %w", err)
	}
	if err := l.storage.Write(ctx, listKey(identifier), string(data)); err != nil {
		return fmt.Errorf("failed to write session list: %w", err)
	}
	return nil
}

func (l *Link) storeSession(ctx context.Context, s *Session) error {
	if l.storage == nil {
		return core.ErrNoStorage
	}
	data, err := json.Marshal(s.Serialize())
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := l.storage.Write(ctx, bodyKey(s.identifier, s.auth, s.chainID), string(data)); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return l.touchSession(ctx, s.identifier, core.SessionKey{Auth: s.auth, ChainID: s.chainID}, false)
}

// RemoveSession deletes a persisted session. Sessions already in memory keep working.
func (l *Link) RemoveSession(ctx context.Context, identifier string, auth core.PermissionLevel, chainID core.ChainID) error {
	if l.storage == nil {
		return core.ErrNoStorage
	}
	if err := l.storage.Remove(ctx, bodyKey(identifier, auth, chainID)); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	if err := l.touchSession(ctx, identifier, core.SessionKey{Auth: auth, ChainID: chainID}, true); err != nil {
		return err
	}
	l.publish(ctx, core.TopicSessionRemoved, core.SessionEvent{Identifier: identifier, Auth: auth, ChainID: chainID})
	return nil
}

// ClearSessions removes every persisted session of identifier
func (l *Link) ClearSessions(ctx context.Context, identifier string) error {
	list, err := l.ListSessions(ctx, identifier)
	if err != nil {
		return err
	}
	for _, item := range list {
		if err := l.RemoveSession(ctx, identifier, item.Auth, item.ChainID); err != nil {
			return err
		}
	}
	return nil
}

// RestoreSession loads a persisted session. With both auth and chainID the
// session is looked up directly, otherwise the most recently used session
// matching the given filters is returned. Filtered restores mark the session
// as most recently used.
func (l *Link) RestoreSession(ctx context.Context, identifier string, auth *core.PermissionLevel, chainID *core.ChainID) (*Session, error) {
	if l.storage == nil {
		return nil, core.ErrNoStorage
	}

	var key string
	if auth != nil && chainID != nil {
		key = bodyKey(identifier, *auth, *chainID)
	} else {
		list, err := l.ListSessions(ctx, identifier)
		if err != nil {
			return nil, err
		}
		found := false
		for _, item := range list {
			if auth != nil && item.Auth != *auth {
				continue
			}
			if chainID != nil && item.ChainID != *chainID {
				continue
			}
			key = bodyKey(identifier, item.Auth, item.ChainID)
			found = true
			break
		}
		if !found {
			return nil, core.ErrSessionNotFound
		}
	}

	data, found, err := l.storage.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if !found || data == "" {
		return nil, core.ErrSessionNotFound
	}
	var serialized core.SerializedSession
	if err := json.Unmarshal([]byte(data), &serialized); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidSessionData, err)
	}
	session, err := l.restoreSession(serialized)
	if err != nil {
		return nil, err
	}

	if auth != nil || chainID != nil {
		if err := l.touchSession(ctx, identifier, core.SessionKey{Auth: session.auth, ChainID: session.chainID}, false); err != nil {
			return nil, err
		}
	}
	return session, nil
}
