// Package sqlstore persists the community snapshot in SQL tables through gorm.
package sqlstore

import (
	"context"
	"fmt"

	"github.com/kasuganosora/baycode/community"
	"github.com/kasuganosora/baycode/model"
	"github.com/kasuganosora/baycode/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store reads and writes the accounts, guilds and chat_messages tables.
// Tables must exist (model.AutoMigrate).
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ store.Adapter = (*Store)(nil)

// Load returns nil when neither guilds nor accounts have been stored.
// Accounts come back in join order, guilds by position, chat by sequence.
func (s *Store) Load(ctx context.Context) (*store.Snapshot, error) {
	db := s.db.WithContext(ctx)
	snap := &store.Snapshot{}
	if err := db.Order("position, name").Find(&snap.Guilds).Error; err != nil {
		return nil, fmt.Errorf("%w: load guilds: %w", community.ErrPersistence, err)
	}
	if err := db.Order("joined_at, id").Find(&snap.Accounts).Error; err != nil {
		return nil, fmt.Errorf("%w: load accounts: %w", community.ErrPersistence, err)
	}
	if len(snap.Guilds) == 0 && len(snap.Accounts) == 0 {
		return nil, nil
	}
	if err := db.Order("seq").Find(&snap.ChatMessages).Error; err != nil {
		return nil, fmt.Errorf("%w: load chat: %w", community.ErrPersistence, err)
	}
	return snap, nil
}

// Save makes the tables mirror snap in a single transaction: rows in snap
// are upserted, rows missing from it are deleted.
func (s *Store) Save(ctx context.Context, snap *store.Snapshot) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accountIDs := make([]string, len(snap.Accounts))
		for i, a := range snap.Accounts {
			accountIDs[i] = a.ID
		}
		if err := mirror(tx, &model.Account{}, "id", accountIDs, snap.Accounts); err != nil {
			return fmt.Errorf("accounts: %w", err)
		}

		guildNames := make([]string, len(snap.Guilds))
		for i, g := range snap.Guilds {
			guildNames[i] = g.Name
		}
		if err := mirror(tx, &model.Guild{}, "name", guildNames, snap.Guilds); err != nil {
			return fmt.Errorf("guilds: %w", err)
		}

		chatIDs := make([]string, len(snap.ChatMessages))
		for i, m := range snap.ChatMessages {
			chatIDs[i] = m.ID
		}
		if err := mirror(tx, &model.ChatMessage{}, "id", chatIDs, snap.ChatMessages); err != nil {
			return fmt.Errorf("chat: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: sql save: %w", community.ErrPersistence, err)
	}
	return nil
}

// mirror deletes rows of table whose key is not in keys, then upserts rows.
func mirror[T any](tx *gorm.DB, table any, key string, keys []string, rows []T) error {
	del := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
	if len(keys) > 0 {
		del = del.Where(key+" NOT IN ?", keys)
	}
	if err := del.Delete(table).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&rows, 100).Error
}
