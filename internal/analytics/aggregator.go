// Package analytics は学習ログから集計期間ごとの学習状況を算出する。
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/studysync/internal/model"
	"github.com/hitoshi/studysync/internal/repository"
)

// Aggregator は生徒1人分の学習ログを読み込み、UsageSummaryに集計する。
type Aggregator struct {
	activityRepo repository.ActivityRepository
	loc          *time.Location
}

// NewAggregator はAggregatorを生成する。
// locは学習日数を数える際の暦日の基準となるタイムゾーン。nilの場合はUTC。
func NewAggregator(activityRepo repository.ActivityRepository, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{activityRepo: activityRepo, loc: loc}
}

// Aggregate は from <= started_at < to の学習ログを集計する。
func (a *Aggregator) Aggregate(ctx context.Context, studentID string, from, to time.Time) (model.UsageSummary, error) {
	entries, err := a.activityRepo.ListByStudentInRange(ctx, studentID, from, to)
	if err != nil {
		return model.UsageSummary{}, fmt.Errorf("学習ログの取得に失敗: %w", err)
	}
	return Summarize(entries, a.loc), nil
}

// Summarize は学習ログの集合からUsageSummaryを算出する。
//   - TotalMinutes: 学習時間の合計（NULLは0分）
//   - ActiveDays: 開始時刻の暦日（loc基準）の異なり数
//   - TopicsStudied: ログの件数
//   - AvgComprehension: 理解度スコアが記録されたログの平均。1件もない場合は0
func Summarize(entries []*model.ActivityLogEntry, loc *time.Location) model.UsageSummary {
	if loc == nil {
		loc = time.UTC
	}

	var (
		summary    model.UsageSummary
		scoreSum   float64
		scoreCount int
	)
	days := make(map[string]struct{})

	for _, e := range entries {
		if e == nil {
			continue
		}
		summary.TopicsStudied++
		if e.TimeSpentMinutes != nil {
			summary.TotalMinutes += *e.TimeSpentMinutes
		}
		days[e.StartedAt.In(loc).Format(time.DateOnly)] = struct{}{}
		if e.ComprehensionScore != nil {
			scoreSum += *e.ComprehensionScore
			scoreCount++
		}
	}

	summary.ActiveDays = len(days)
	if scoreCount > 0 {
		summary.AvgComprehension = scoreSum / float64(scoreCount)
	}
	return summary
}
