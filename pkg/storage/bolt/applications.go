package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/boltdb/bolt"

	"github.com/platinummonkey/joboost/pkg/applications"
)

func applicationKey(userID, applicationID string) []byte {
	return []byte(userID + keySep + applicationID)
}

// GetProfile returns the user's master profile.
func (s *Store) GetProfile(ctx context.Context, userID string) (*applications.Profile, error) {
	var out *applications.Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		var p applications.Profile
		found, err := getJSON(tx.Bucket(profilesBucket), userID, &p)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", applications.ErrProfileNotFound, userID)
		}
		out = &p
		return nil
	})
	return out, err
}

// PutProfile replaces the profile, keeping the stored creation time.
func (s *Store) PutProfile(ctx context.Context, p *applications.Profile) (*applications.Profile, error) {
	out := *p
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(profilesBucket)
		var existing applications.Profile
		found, err := getJSON(bucket, p.UserID, &existing)
		if err != nil {
			return err
		}
		if found {
			out.CreatedAt = existing.CreatedAt
		}
		return putJSON(bucket, p.UserID, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateApplication stores a new application.
func (s *Store) CreateApplication(ctx context.Context, a *applications.Application) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := applicationKey(a.UserID, a.ID)
		bucket := tx.Bucket(applicationsBucket)
		if bucket.Get(key) != nil {
			return fmt.Errorf("application %s already exists", a.ID)
		}
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return bucket.Put(key, data)
	})
}

func loadApplication(tx *bolt.Tx, userID, applicationID string) (*applications.Application, error) {
	data := tx.Bucket(applicationsBucket).Get(applicationKey(userID, applicationID))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", applications.ErrApplicationNotFound, applicationID)
	}
	var a applications.Application
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("corrupt record %q: %w", applicationID, err)
	}
	return &a, nil
}

// GetApplication returns the user's application.
func (s *Store) GetApplication(ctx context.Context, userID, applicationID string) (*applications.Application, error) {
	var out *applications.Application
	err := s.db.View(func(tx *bolt.Tx) error {
		a, err := loadApplication(tx, userID, applicationID)
		out = a
		return err
	})
	return out, err
}

// ListApplications returns the user's applications, newest first.
func (s *Store) ListApplications(ctx context.Context, userID string, limit int) ([]*applications.Application, error) {
	prefix := []byte(userID + keySep)
	var out []*applications.Application
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(applicationsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var a applications.Application
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("corrupt record %q: %w", k, err)
			}
			if a.UserID != userID {
				continue
			}
			out = append(out, &a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateApplication runs fn on the stored application and writes the result
// in the same write transaction.
func (s *Store) UpdateApplication(ctx context.Context, userID, applicationID string, fn applications.ApplicationMutator) (*applications.Application, error) {
	var out *applications.Application
	err := s.db.Update(func(tx *bolt.Tx) error {
		a, err := loadApplication(tx, userID, applicationID)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		// Identity is not editable.
		a.ID, a.UserID = applicationID, userID
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		out = a
		return tx.Bucket(applicationsBucket).Put(applicationKey(userID, applicationID), data)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteApplication removes the user's application.
func (s *Store) DeleteApplication(ctx context.Context, userID, applicationID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(applicationsBucket)
		key := applicationKey(userID, applicationID)
		if bucket.Get(key) == nil {
			return fmt.Errorf("%w: %s", applications.ErrApplicationNotFound, applicationID)
		}
		return bucket.Delete(key)
	})
}
