package history

import (
	"encoding/json"
	"fmt"
	"os"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/klyp/klyp-go/internal/domain"
)

// Store persists completed downloads in SQLite
type Store struct {
	db *gorm.DB
}

// NewStore opens (or creates) the history database at dbPath
func NewStore(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.AutoMigrate(&domain.HistoryEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Add appends a history entry
func (s *Store) Add(entry domain.HistoryEntry) error {
	return s.db.Create(&entry).Error
}

// Recent returns up to limit entries, most recent first. limit <= 0 returns
// everything.
func (s *Store) Recent(limit int) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	query := s.db.Order("completed_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&entries).Error
	return entries, err
}

// Search returns entries whose title or URL contains the term, most recent
// first.
func (s *Store) Search(term string) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	like := "%" + term + "%"
	err := s.db.Where("title LIKE ? OR url LIKE ?", like, like).
		Order("completed_at DESC").
		Find(&entries).Error
	return entries, err
}

// ByPlatform returns entries for one platform, most recent first
func (s *Store) ByPlatform(platform string) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	err := s.db.Where("platform = ?", platform).
		Order("completed_at DESC").
		Find(&entries).Error
	return entries, err
}

// Count returns the number of history entries
func (s *Store) Count() (int64, error) {
	var count int64
	err := s.db.Model(&domain.HistoryEntry{}).Count(&count).Error
	return count, err
}

// TotalSize returns the summed size of all recorded downloads in bytes
func (s *Store) TotalSize() (int64, error) {
	var total int64
	err := s.db.Model(&domain.HistoryEntry{}).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&total).Error
	return total, err
}

// Remove deletes one entry by id
func (s *Store) Remove(id string) error {
	return s.db.Delete(&domain.HistoryEntry{}, "id = ?", id).Error
}

// Clear deletes every entry
func (s *Store) Clear() error {
	return s.db.Where("1 = 1").Delete(&domain.HistoryEntry{}).Error
}

// Close closes the underlying database
func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// historyDocument is the JSON interchange envelope
type historyDocument struct {
	Version int                   `json:"version"`
	Entries []domain.HistoryEntry `json:"entries"`
}

// Export writes every entry, most recent first, to a JSON document at path
func (s *Store) Export(path string) error {
	entries, err := s.Recent(0)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	data, err := json.MarshalIndent(historyDocument{Version: 1, Entries: entries}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Import reads a JSON document written by Export and inserts entries whose
// id is not already present. Returns the number imported.
func (s *Store) Import(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var doc historyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("invalid history document: %w", err)
	}

	imported := 0
	for _, entry := range doc.Entries {
		var count int64
		if err := s.db.Model(&domain.HistoryEntry{}).
			Where("id = ?", entry.ID).
			Count(&count).Error; err != nil {
			return imported, err
		}
		if count > 0 {
			continue
		}
		if err := s.db.Create(&entry).Error; err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
