// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate queries over feedback items
// for the admin statistics endpoint.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-bot/internal/domain"
)

// FeedbackAggregate holds the grouped counts for a filtered set of items.
//
// ByBranch and ByRole are only populated when requested, mirroring the
// admin API which omits a distribution when its dimension is filtered on.
type FeedbackAggregate struct {
	Total         int64
	BySentiment   map[domain.Sentiment]int64
	ByCriticality map[int]int64
	ByBranch      map[string]int64
	ByRole        map[domain.Role]int64
	Critical      int64 // criticality >= threshold
}

// AggregateOptions selects optional groupings.
type AggregateOptions struct {
	GroupByBranch     bool
	GroupByRole       bool
	CriticalThreshold int
}

// FeedbackStats computes FeedbackAggregate for items matching f.
//
// Each grouping runs as its own query on a fresh scope so conditions are never
// shared between statements.
func FeedbackStats(ctx context.Context, db *gorm.DB, f FeedbackFilter, opts AggregateOptions) (*FeedbackAggregate, error) {
	scope := func() *gorm.DB {
		return scopeFeedback(db.WithContext(ctx).Model(&domain.FeedbackItem{}), f)
	}
	out := &FeedbackAggregate{
		BySentiment:   map[domain.Sentiment]int64{},
		ByCriticality: map[int]int64{},
	}

	if err := scope().Count(&out.Total).Error; err != nil {
		return nil, err
	}
	if out.Total == 0 {
		if opts.GroupByBranch {
			out.ByBranch = map[string]int64{}
		}
		if opts.GroupByRole {
			out.ByRole = map[domain.Role]int64{}
		}
		return out, nil
	}

	var sent []struct {
		Bucket string
		N   int64
	}
	if err := scope().
		Select("feedback_items.sentiment AS bucket, COUNT(*) AS n").
		Group("feedback_items.sentiment").
		Scan(&sent).Error; err != nil {
		return nil, err
	}
	for _, r := range sent {
		out.BySentiment[domain.Sentiment(r.Bucket)] = r.N
	}

	var crit []struct {
		Bucket int
		N   int64
	}
	if err := scope().
		Select("feedback_items.criticality AS bucket, COUNT(*) AS n").
		Group("feedback_items.criticality").
		Scan(&crit).Error; err != nil {
		return nil, err
	}
	for _, r := range crit {
		out.ByCriticality[r.Bucket] = r.N
		if opts.CriticalThreshold > 0 && r.Bucket >= opts.CriticalThreshold {
			out.Critical += r.N
		}
	}

	if opts.GroupByBranch {
		rows, err := groupByIdentityColumn(scope(), f, "branch")
		if err != nil {
			return nil, err
		}
		out.ByBranch = rows
	}
	if opts.GroupByRole {
		rows, err := groupByIdentityColumn(scope(), f, "role")
		if err != nil {
			return nil, err
		}
		out.ByRole = make(map[domain.Role]int64, len(rows))
		for k, v := range rows {
			out.ByRole[domain.Role(k)] = v
		}
	}
	return out, nil
}

// groupByIdentityColumn counts items per identities.<col>. The join is added
// only when scopeFeedback has not already joined identities.
func groupByIdentityColumn(q *gorm.DB, f FeedbackFilter, col string) (map[string]int64, error) {
	if f.Branch == "" && f.Role == "" {
		q = q.Joins("JOIN identities ON identities.id = feedback_items.identity_id")
	}
	var rows []struct {
		Bucket string
		N   int64
	}
	if err := q.
		Select("COALESCE(identities." + col + ", '') AS bucket, COUNT(*) AS n").
		Group("identities." + col).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Bucket] += r.N
	}
	return out, nil
}

// AverageCriticality returns the mean criticality of agg, or 0 for no items.
func (agg *FeedbackAggregate) AverageCriticality() float64 {
	if agg == nil || agg.Total == 0 {
		return 0
	}
	var sum int64
	for k, n := range agg.ByCriticality {
		sum += int64(k) * n
	}
	return float64(sum) / float64(agg.Total)
}
