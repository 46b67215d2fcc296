// Package db keeps an audit log of served predictions and evaluation runs in
// SQLite. Models themselves are never stored.
package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"penguinlab/ml"
	"penguinlab/penguins"
)

var ErrClosed = errors.New("database not initialized")

// Store persists predictions and evaluation runs in sqlite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id TEXT PRIMARY KEY,
        level VARCHAR(20) NOT NULL,
        island VARCHAR(20) NOT NULL,
        sex VARCHAR(10) NOT NULL,
        bill_length_mm REAL NOT NULL,
        bill_depth_mm REAL NOT NULL,
        flipper_length_mm REAL NOT NULL,
        body_mass_g REAL NOT NULL,
        species VARCHAR(20) NOT NULL,
        p_adelie REAL NOT NULL,
        p_chinstrap REAL NOT NULL,
        p_gentoo REAL NOT NULL,
        tree_count INTEGER NOT NULL,
        max_features INTEGER NOT NULL,
        seed INTEGER NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50),
        accuracy REAL,
        train_size INTEGER,
        test_size INTEGER,
        tree_count INTEGER,
        max_features INTEGER,
        trained_at DATETIME
    );
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PredictionRecord is one row of the prediction log.
type PredictionRecord struct {
	ID            string               `json:"id"`
	Level         ml.Level             `json:"level"`
	Query         penguins.Observation `json:"query"`
	Species       penguins.Species     `json:"species"`
	Probabilities ml.Probabilities     `json:"probabilities"`
	TreeCount     int                  `json:"tree_count"`
	MaxFeatures   int                  `json:"max_features"`
	Seed          int64                `json:"seed"`
	CreatedAt     time.Time            `json:"created_at"`
}

// NewPredictionRecord stamps a result with a fresh id and the current time.
func NewPredictionRecord(level ml.Level, query penguins.Observation, result *ml.Result) PredictionRecord {
	record := PredictionRecord{
		ID:            uuid.NewString(),
		Level:         level,
		Query:         query,
		Species:       result.Species,
		Probabilities: result.Probabilities,
		TreeCount:     result.Hyperparameters.TreeCount,
		MaxFeatures:   result.Hyperparameters.MaxFeatures,
		CreatedAt:     time.Now().UTC(),
	}
	if result.Hyperparameters.Seed != nil {
		record.Seed = *result.Hyperparameters.Seed
	}
	return record
}

// SavePrediction inserts a record. Ids must be unique.
func (s *Store) SavePrediction(record PredictionRecord) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if record.ID == "" {
		return errors.New("prediction id required")
	}
	_, err := s.db.Exec(`
        INSERT INTO predictions (
            id, level, island, sex, bill_length_mm, bill_depth_mm, flipper_length_mm, body_mass_g,
            species, p_adelie, p_chinstrap, p_gentoo, tree_count, max_features, seed, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		string(record.Level),
		string(record.Query.Island),
		string(record.Query.Sex),
		record.Query.BillLengthMM,
		record.Query.BillDepthMM,
		record.Query.FlipperLengthMM,
		record.Query.BodyMassG,
		string(record.Species),
		record.Probabilities[penguins.Adelie],
		record.Probabilities[penguins.Chinstrap],
		record.Probabilities[penguins.Gentoo],
		record.TreeCount,
		record.MaxFeatures,
		record.Seed,
		record.CreatedAt,
	)
	return err
}

// RecentPredictions returns up to limit records, newest first.
func (s *Store) RecentPredictions(limit int) ([]PredictionRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.Query(`
        SELECT id, level, island, sex, bill_length_mm, bill_depth_mm, flipper_length_mm, body_mass_g,
               species, p_adelie, p_chinstrap, p_gentoo, tree_count, max_features, seed, created_at
        FROM predictions
        ORDER BY created_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var r PredictionRecord
		var level, island, sex, species string
		var adelie, chinstrap, gentoo float64
		err := rows.Scan(&r.ID, &level, &island, &sex,
			&r.Query.BillLengthMM, &r.Query.BillDepthMM, &r.Query.FlipperLengthMM, &r.Query.BodyMassG,
			&species, &adelie, &chinstrap, &gentoo, &r.TreeCount, &r.MaxFeatures, &r.Seed, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		r.Level = ml.Level(level)
		r.Query.Island = penguins.Island(island)
		r.Query.Sex = penguins.Sex(sex)
		r.Species = penguins.Species(species)
		r.Probabilities = ml.Probabilities{
			penguins.Adelie:    adelie,
			penguins.Chinstrap: chinstrap,
			penguins.Gentoo:    gentoo,
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

type TrainingLog struct {
	ModelName   string    `json:"model_name"`
	Accuracy    float64   `json:"accuracy"`
	TrainSize   int       `json:"train_size"`
	TestSize    int       `json:"test_size"`
	TreeCount   int       `json:"tree_count"`
	MaxFeatures int       `json:"max_features"`
	TrainedAt   time.Time `json:"trained_at"`
}

// SaveEvaluation records a holdout evaluation run.
func (s *Store) SaveEvaluation(modelName string, hp ml.Hyperparameters, eval *ml.Evaluation) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.Exec(`
        INSERT INTO training_log (model_name, accuracy, train_size, test_size, tree_count, max_features, trained_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		modelName, eval.Accuracy, eval.TrainSize, eval.TestSize, hp.TreeCount, hp.MaxFeatures, time.Now().UTC())
	return err
}

func (s *Store) LoadTrainingLog() ([]TrainingLog, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.Query(`
        SELECT model_name, accuracy, train_size, test_size, tree_count, max_features, trained_at
        FROM training_log
        ORDER BY trained_at DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelName, &log.Accuracy, &log.TrainSize, &log.TestSize, &log.TreeCount, &log.MaxFeatures, &log.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
