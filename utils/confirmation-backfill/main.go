// confirmation-backfill writes historical confirmation time snapshots so the
// statistics endpoints have history before the API service ran.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/coti-io/coti-explorer-api-sub000/config"
	"github.com/coti-io/coti-explorer-api-sub000/index"
	"github.com/coti-io/coti-explorer-api-sub000/stats"
)

type backfillStore interface {
	QueryConfirmationTimeStatsAt(ctx context.Context, at time.Time, window time.Duration) (index.ConfirmationTimeStats, error)
	InsertConfirmationTimeSnapshot(ctx context.Context, stats index.ConfirmationTimeStats) error
}

// snapshotTimes returns the snapshot instants from start up to end, step apart.
func snapshotTimes(start, end time.Time, step time.Duration) []time.Time {
	res := []time.Time{}
	for at := start.Truncate(step).Add(step); !at.After(end); at = at.Add(step) {
		res = append(res, at)
	}
	return res
}

func backfill(ctx context.Context, db backfillStore, times []time.Time, window time.Duration, pbar *progressbar.ProgressBar) (int, error) {
	written := 0
	for _, at := range times {
		s, err := db.QueryConfirmationTimeStatsAt(ctx, at, window)
		if err != nil {
			return written, err
		}
		if s.SampleSize > 0 {
			if err := db.InsertConfirmationTimeSnapshot(ctx, s); err != nil {
				return written, err
			}
			written++
		}
		if pbar != nil {
			pbar.Add(1)
		}
	}
	return written, nil
}

func main() {
	var pgDsn string
	var from string
	var step time.Duration
	flag.StringVar(&pgDsn, "pg", config.String("EXPLORER_PG", "postgresql://localhost:5432"), "PostgreSQL connection string")
	flag.StringVar(&from, "from", "", "First snapshot date (YYYY-MM-DD), defaults to the first confirmed transaction")
	flag.DurationVar(&step, "step", time.Hour, "Distance between snapshots")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx := context.Background()
	db, err := index.NewDbClient(pgDsn, 4, 0)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to PostgreSQL")
	}
	defer db.Close()

	var start time.Time
	if from != "" {
		start, err = time.Parse(time.DateOnly, from)
		if err != nil {
			log.WithError(err).Fatal("invalid -from")
		}
	} else {
		first, err := db.FirstConfirmationTime(ctx)
		if err != nil {
			log.WithError(err).Fatal("failed to read first confirmation time")
		}
		if first == nil {
			log.Info("no confirmed transactions, nothing to do")
			return
		}
		start = *first
	}

	times := snapshotTimes(start.UTC(), time.Now().UTC(), step)
	log.WithFields(logrus.Fields{"from": start, "snapshots": len(times)}).Info("starting backfill")
	pbar := progressbar.NewOptions(len(times), progressbar.OptionFullWidth(), progressbar.OptionShowCount(), progressbar.OptionShowIts())

	written, err := backfill(ctx, db, times, stats.ConfirmationWindow, pbar)
	if err != nil {
		log.WithError(err).WithField("written", written).Fatal("backfill failed")
	}
	log.WithField("written", written).Info("finished")
}
