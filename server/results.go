package server

import (
	"sort"
	"sync"

	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	"github.com/pkg/errors"

	"pnpong/model"
)

//ResultStore records finished games and serves a user's history
type ResultStore interface {
	Record(result model.GameResult) error
	ListByIntraID(intraID int64) ([]model.GameResult, error)
}

//ConnectDB returns nil when no mongo is configured
func ConnectDB(config *Config, logger *Logger) *mgo.Session {
	if config.DBConfig.ConnString == "" {
		return nil
	}

	conn, err := mgo.Dial(config.DBConfig.ConnString)
	if err != nil {
		logger.Fatalw("Cannot dial mongo", "error", err)
	}
	logger.Info("Mongo connection completed")
	return conn
}

func NewResultStore(db *mgo.Session, config *Config) ResultStore {
	if db == nil {
		return NewLocalResultStore()
	}
	return &MongoResultStore{db: db, database: config.DBConfig.Database}
}

type MongoResultStore struct {
	db       *mgo.Session
	database string
}

func (m *MongoResultStore) Record(result model.GameResult) error {
	conn := m.db.Copy()
	defer conn.Close()

	err := conn.DB(m.database).C(result.GetCollectionName()).Insert(&result)
	return errors.Wrap(err, "could not insert game result")
}

func (m *MongoResultStore) ListByIntraID(intraID int64) ([]model.GameResult, error) {
	conn := m.db.Copy()
	defer conn.Close()

	results := make([]model.GameResult, 0)
	err := conn.DB(m.database).C(model.GameResult{}.GetCollectionName()).Find(bson.M{
		"$or": []bson.M{
			{"winner_intra_id": intraID},
			{"loser_intra_id": intraID},
		},
	}).Sort("-created_at").All(&results)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch game results")
	}
	return results, nil
}

type LocalResultStore struct {
	sync.RWMutex
	results []model.GameResult
}

func NewLocalResultStore() *LocalResultStore {
	return &LocalResultStore{
		results: make([]model.GameResult, 0),
	}
}

func (l *LocalResultStore) Record(result model.GameResult) error {
	l.Lock()
	l.results = append(l.results, result)
	l.Unlock()
	return nil
}

func (l *LocalResultStore) ListByIntraID(intraID int64) ([]model.GameResult, error) {
	l.RLock()
	defer l.RUnlock()

	results := make([]model.GameResult, 0)
	for _, result := range l.results {
		if result.Involves(intraID) {
			results = append(results, result)
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].CreatedAt > results[j].CreatedAt })
	return results, nil
}
