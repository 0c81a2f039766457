package server

import (
	"context"
	"net/http"

	"go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

type Stats struct {
	prometheusExporter *prometheus.Exporter
	logger             *Logger

	keyMode   tag.Key
	keyReason tag.Key

	mSocketRequest    *stats.Int64Measure
	mSocketConnection *stats.Int64Measure
	mRequest          *stats.Int64Measure
	mMatch            *stats.Int64Measure
	mActiveRooms      *stats.Int64Measure
	mTeardown         *stats.Int64Measure
	mBallCorrection   *stats.Int64Measure
	mScoreResolution  *stats.Int64Measure
}

func NewStatsHolder(logger *Logger) *Stats {

	keyMode, _ := tag.NewKey("mode")
	keyReason, _ := tag.NewKey("reason")

	mSocketRequest := stats.Int64("pong/socket_requests", "Socket Request Count", "By")
	mSocketConnection := stats.Int64("pong/socket_connection", "Socket Connection Count", "By")
	mRequest := stats.Int64("pong/requests", "Request Count", "By")
	mMatch := stats.Int64("pong/matches", "Formed Match Count", "By")
	mActiveRooms := stats.Int64("pong/active_rooms", "Active Room Count", "By")
	mTeardown := stats.Int64("pong/room_teardowns", "Removed Room Count", "By")
	mBallCorrection := stats.Int64("pong/ball_corrections", "Broadcast Ball Correction Count", "By")
	mScoreResolution := stats.Int64("pong/score_resolutions", "Resolved Score Quorum Count", "By")

	views := []*view.View{
		{
			Name:        "pong/socket_requests_sum",
			Measure:     mSocketRequest,
			Description: "The number of total socket request",
			Aggregation: view.Sum(),
		},
		{
			Name:        "pong/socket_connection_sum",
			Measure:     mSocketConnection,
			Description: "The number of open socket connection",
			Aggregation: view.Sum(),
		},
		{
			Name:        "pong/requests_sum",
			Measure:     mRequest,
			Description: "The number of total http request",
			Aggregation: view.Sum(),
		},
		{
			Name:        "pong/matches_sum",
			Measure:     mMatch,
			Description: "The number of formed matches by mode",
			TagKeys:     []tag.Key{keyMode},
			Aggregation: view.Sum(),
		},
		{
			Name:        "pong/active_rooms",
			Measure:     mActiveRooms,
			Description: "The number of live rooms",
			Aggregation: view.LastValue(),
		},
		{
			Name:        "pong/room_teardowns_sum",
			Measure:     mTeardown,
			Description: "The number of removed rooms by reason",
			TagKeys:     []tag.Key{keyReason},
			Aggregation: view.Sum(),
		},
		{
			Name:        "pong/ball_corrections_sum",
			Measure:     mBallCorrection,
			Description: "The number of ball corrections broadcast to rooms",
			Aggregation: view.Sum(),
		},
		{
			Name:        "pong/score_resolutions_sum",
			Measure:     mScoreResolution,
			Description: "The number of resolved score quorums",
			Aggregation: view.Sum(),
		},
	}

	if err := view.Register(views...); err != nil {
		logger.Fatalw("Error while registering stat views", "error", err)
	}

	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: "pong",
	})
	if err != nil {
		logger.Fatalw("Error while creating new prometheus exporter", "error", err)
	}

	view.RegisterExporter(pe)

	return &Stats{
		prometheusExporter: pe,
		logger:             logger,
		keyMode:            keyMode,
		keyReason:          keyReason,
		mSocketRequest:     mSocketRequest,
		mSocketConnection:  mSocketConnection,
		mRequest:           mRequest,
		mMatch:             mMatch,
		mActiveRooms:       mActiveRooms,
		mTeardown:          mTeardown,
		mBallCorrection:    mBallCorrection,
		mScoreResolution:   mScoreResolution,
	}

}

//Handler serves the prometheus scrape endpoint
func (s Stats) Handler() http.Handler {
	return s.prometheusExporter
}

func (s Stats) IncrSocketRequest() {
	stats.Record(context.Background(), s.mSocketRequest.M(1))
}

func (s Stats) IncrRequest() {
	stats.Record(context.Background(), s.mRequest.M(1))
}

func (s Stats) IncrSocketConnection() {
	stats.Record(context.Background(), s.mSocketConnection.M(1))
}

func (s Stats) DecrSocketConnection() {
	stats.Record(context.Background(), s.mSocketConnection.M(-1))
}

func (s Stats) IncrMatch(mode string) {
	s.recordTagged(s.keyMode, mode, s.mMatch.M(1))
}

func (s Stats) SetActiveRooms(count int) {
	stats.Record(context.Background(), s.mActiveRooms.M(int64(count)))
}

func (s Stats) IncrTeardown(reason string) {
	s.recordTagged(s.keyReason, reason, s.mTeardown.M(1))
}

func (s Stats) IncrBallCorrection() {
	stats.Record(context.Background(), s.mBallCorrection.M(1))
}

func (s Stats) IncrScoreResolution() {
	stats.Record(context.Background(), s.mScoreResolution.M(1))
}

func (s Stats) recordTagged(key tag.Key, value string, measurement stats.Measurement) {
	ctx, err := tag.New(context.Background(), tag.Upsert(key, value))
	if err != nil {
		s.logger.Warnw("Could not tag measurement", "key", key.Name(), "value", value, "error", err)
		ctx = context.Background()
	}
	stats.Record(ctx, measurement)
}
