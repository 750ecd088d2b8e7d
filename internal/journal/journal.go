// Package journal keeps a persistent ledger of asynchronous exchanges: when
// each request arrived, when and how it was answered.
package journal

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	// How long finished and abandoned exchanges are kept by default.
	DEFAULT_RETENTION = 10 * time.Minute

	// How often the daemon prunes the journal.
	CLEANUP_INTERVAL = 30 * time.Second

	DATA_PAGE_SIZE = 10

	OUTCOME_PENDING = "pending"
)

var ErrUnknownExchange = errors.New("unknown exchange")

// One asynchronous request and, once known, its outcome.
type Exchange struct {
	UniqueId string `gorm:"primaryKey" json:"uniqueId"`
	Remote   string `gorm:"index;not null" json:"remote"`
	Method   string `gorm:"not null" json:"method"`
	Target   string `gorm:"not null" json:"target"`

	RequestTime time.Time `gorm:"index;not null" json:"requestTime"`

	ResponseTime time.Time `json:"responseTime"`
	Outcome      string    `gorm:"index;not null" json:"outcome"`
	StatusCode   int       `json:"statusCode"`
}

type Journal struct {
	db *gorm.DB
}

// Open, and create if needed, the journal database at path. The special path
// ":memory:" keeps the journal in memory for the lifetime of the process.
func Open(path string) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// SQLite allows a single writer; in-memory databases are also private to
	// their connection.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Exchange{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record a new pending exchange. Recording an id twice restarts it.
func (j *Journal) Begin(id, remote, method, target string) error {
	result := j.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "unique_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"remote", "method", "target", "request_time", "response_time", "outcome", "status_code"}),
	}).Create(&Exchange{
		UniqueId:    id,
		Remote:      remote,
		Method:      method,
		Target:      target,
		RequestTime: time.Now(),
		Outcome:     OUTCOME_PENDING,
	})
	return result.Error
}

// Record the outcome of a pending exchange. Exchanges that are already
// finished keep their first outcome.
func (j *Journal) Finish(id, outcome string, status int) error {
	ex := Exchange{}
	result := j.db.Take(&ex, "unique_id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownExchange, id)
	}
	if result.Error != nil {
		return result.Error
	}

	if ex.Outcome != OUTCOME_PENDING {
		return nil
	}

	ex.ResponseTime = time.Now()
	ex.Outcome = outcome
	ex.StatusCode = status
	return j.db.Save(&ex).Error
}

func (j *Journal) Get(id string) (*Exchange, error) {
	ex := Exchange{}
	result := j.db.Take(&ex, "unique_id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, id)
	}
	return &ex, result.Error
}

// Exchanges ordered by arrival, oldest first.
func (j *Journal) GetPage(offset, limit int) ([]Exchange, error) {
	var exchanges []Exchange
	result := j.db.Order("request_time ASC").Offset(offset).Limit(limit).Find(&exchanges)
	return exchanges, result.Error
}

func (j *Journal) Count() (int64, error) {
	var count int64
	result := j.db.Model(&Exchange{}).Count(&count)
	return count, result.Error
}

// Count exchanges per outcome.
func (j *Journal) Summary() (map[string]int64, error) {
	var rows []struct {
		Outcome string
		Count   int64
	}
	result := j.db.Model(&Exchange{}).Select("outcome, count(*) as count").Group("outcome").Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	summary := make(map[string]int64, len(rows))
	for _, r := range rows {
		summary[r.Outcome] = r.Count
	}
	return summary, nil
}

// Delete exchanges which arrived more than retention ago. Returns how many
// were removed.
func (j *Journal) Prune(retention time.Duration) (int64, error) {
	result := j.db.Where("request_time <= ?", time.Now().Add(-1*retention)).Delete(&Exchange{})
	return result.RowsAffected, result.Error
}
