package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lendledger/native/lending"
)

const maxListLimit = 500

// Entry is one committed lifecycle event. Amounts are stored as decimal
// strings because SQL integer columns are signed.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Seq        uint64    `gorm:"uniqueIndex;not null" json:"seq"`
	Type       string    `gorm:"size:32;index" json:"type"`
	Caller     string    `gorm:"size:128;index" json:"caller"`
	Borrower   string    `gorm:"size:128;index" json:"borrower,omitempty"`
	LoanID     uint64    `gorm:"index" json:"loanId,omitempty"`
	Amount     string    `gorm:"size:24" json:"amount,omitempty"`
	Collateral string    `gorm:"size:24" json:"collateral,omitempty"`
	Interest   string    `gorm:"size:24" json:"interest,omitempty"`
	Param      string    `gorm:"size:64" json:"param,omitempty"`
	Value      string    `gorm:"size:24" json:"value,omitempty"`
	Height     uint64    `gorm:"index" json:"height"`
	Digest     string    `gorm:"size:64;not null" json:"digest"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName pins the table name independent of gorm naming strategy.
func (Entry) TableName() string { return "lending_events" }

// AutoMigrate performs the journal schema migration.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

// Journal appends committed engine events to a SQL table. It implements
// lending.EventSink; write failures are logged and never reach the engine.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger

	mu     sync.Mutex
	seq    uint64
	digest string
	now    func() time.Time
}

var _ lending.EventSink = (*Journal)(nil)

// Open connects to driver ("sqlite" or "postgres") and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Journal, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return New(db, log)
}

// New wraps an open gorm handle, migrating the schema and resuming the
// sequence from the last stored entry.
func New(db *gorm.DB, log *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	var last Entry
	err := db.Order("seq desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("journal: load sequence: %w", err)
	}
	return &Journal{db: db, logger: log, seq: last.Seq, digest: last.Digest, now: time.Now}, nil
}

// Publish appends ev.
func (j *Journal) Publish(ev lending.Event) {
	if _, err := j.Append(context.Background(), ev); err != nil {
		j.logger.Error("journal append failed", "type", string(ev.Type), "loan_id", uint64(ev.LoanID), "error", err)
	}
}

// Append stores ev and returns the stored entry.
func (j *Journal) Append(ctx context.Context, ev lending.Event) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry := Entry{
		ID:         uuid.New(),
		Seq:        j.seq + 1,
		Type:       string(ev.Type),
		Caller:     ev.Caller.String(),
		Borrower:   ev.Borrower.String(),
		LoanID:     uint64(ev.LoanID),
		Amount:     formatAmount(ev.Amount),
		Collateral: formatAmount(ev.Collateral),
		Interest:   formatAmount(ev.Interest),
		Param:      ev.Param,
		Value:      formatAmount(ev.Value),
		Height:     ev.Height,
		CreatedAt:  j.now().UTC(),
	}
	entry.Digest = entryDigest(j.digest, &entry)
	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return Entry{}, err
	}
	j.seq = entry.Seq
	j.digest = entry.Digest
	return entry, nil
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	LoanID   uint64
	Account  string
	Type     string
	AfterSeq uint64
	Limit    int
}

// List returns entries in sequence order.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := j.db.WithContext(ctx).Model(&Entry{})
	if filter.LoanID != 0 {
		query = query.Where("loan_id = ?", filter.LoanID)
	}
	if filter.Account != "" {
		query = query.Where("caller = ? OR borrower = ?", filter.Account, filter.Account)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.AfterSeq != 0 {
		query = query.Where("seq > ?", filter.AfterSeq)
	}
	limit := filter.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	var entries []Entry
	if err := query.Order("seq asc").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func formatAmount(v uint64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatUint(v, 10)
}
