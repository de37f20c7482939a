package archive

import (
	"fmt"
	"net/url"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"main/internal/experiment"
)

const (
	defaultHost    = "localhost"
	defaultPort    = 5432
	defaultSSLMode = "disable"
)

// Option defines connection options for the Postgres run archive.
type Option struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

// RunRecord is the persisted form of a finished run.
type RunRecord struct {
	ID        uint      `gorm:"primaryKey"`
	RunID     string    `gorm:"uniqueIndex;size:36"`
	StartedAt time.Time
	EndedAt   time.Time
	Note      string
	TotalPnl  string
	Trades    int64
	Wins      int64
	Losses    int64
	Fees      string
	Phases    []PhaseRecord `gorm:"foreignKey:RunRecordID"`
}

// PhaseRecord is one completed phase of a run.
type PhaseRecord struct {
	ID          uint `gorm:"primaryKey"`
	RunRecordID uint `gorm:"index"`
	PhaseIndex  int
	Preset      string
	Pnl         string
	Trades      int64
	Wins        int64
	Losses      int64
	Fees        string
	EndedAt     time.Time
}

// Archive persists finished experiment runs.
type Archive struct {
	opt Option
	db  *gorm.DB
}

// New opens the archive database and migrates its tables.
func New(option Option) (*Archive, error) {
	connString, err := option.dsn()
	if err != nil {
		return nil, err
	}

	config := option.Config
	if config == nil {
		config = &gorm.Config{}
	}

	db, err := gorm.Open(postgres.Open(connString), config)
	if err != nil {
		return nil, errors.Wrap(err, "open archive database")
	}
	if err := db.AutoMigrate(&RunRecord{}, &PhaseRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate archive tables")
	}

	return &Archive{opt: option, db: db}, nil
}

// SaveRun persists a terminal run with its phase results. Non-terminal runs
// are rejected.
func (a *Archive) SaveRun(run experiment.Run) error {
	if a == nil || a.db == nil {
		return nil
	}
	if run.Running {
		return fmt.Errorf("archive: run %s is still running", run.RunID)
	}

	record := newRunRecord(run)
	if err := a.db.Create(&record).Error; err != nil {
		return errors.Wrapf(err, "archive run %s", run.RunID)
	}
	return nil
}

// Close closes the underlying connection pool.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newRunRecord(run experiment.Run) RunRecord {
	record := RunRecord{
		RunID:     run.RunID,
		StartedAt: run.StartedAt,
		EndedAt:   time.Now(),
		Note:      run.Note,
	}
	if run.Final != nil {
		record.TotalPnl = run.Final.TotalPnl.String()
		record.Trades = run.Final.Trades
		record.Wins = run.Final.Wins
		record.Losses = run.Final.Losses
		record.Fees = run.Final.Fees.String()
	}
	for _, phase := range run.Results {
		record.Phases = append(record.Phases, PhaseRecord{
			PhaseIndex: phase.PhaseIndex,
			Preset:     phase.Preset,
			Pnl:        phase.Delta.Pnl.String(),
			Trades:     phase.Delta.Trades,
			Wins:       phase.Delta.Wins,
			Losses:     phase.Delta.Losses,
			Fees:       phase.Delta.Fees.String(),
			EndedAt:    phase.EndedAt,
		})
	}
	return record
}

func (opt Option) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}

	host := opt.Host
	if host == "" {
		host = defaultHost
	}

	port := opt.Port
	if port == 0 {
		port = defaultPort
	}

	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}

	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}

	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	if len(query) != 0 {
		u.RawQuery = query.Encode()
	}

	return u.String(), nil
}
