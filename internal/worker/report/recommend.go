package report

import "github.com/hitoshi/studysync/internal/model"

const (
	// minMinutesPerWeek を下回る学習時間は少なめとみなす。
	minMinutesPerWeek = 60
	// minActiveDaysPerWeek を下回る学習日数は少なめとみなす。
	minActiveDaysPerWeek = 3
	// lowComprehension 未満の平均理解度は復習を勧める。
	lowComprehension = 60.0
)

const (
	recNoActivity = "この期間の学習記録がありません。短い時間からでも学習を再開しましょう。"
	recLowMinutes = "学習時間が少なめです。1日15分を目安に学習時間を確保しましょう。"
	recFewDays    = "学習日数が少なめです。毎日少しずつ学習を続けましょう。"
	recLowScore   = "理解度が低めです。苦手なトピックの復習に時間を使いましょう。"
	recKeepGoing  = "順調に学習が進んでいます。この調子で続けましょう。"
)

// Recommend は集計結果から定型のおすすめ文を返す。
// 基準は1週間あたりの値をwindowDaysに比例させて判定する。
func Recommend(usage model.UsageSummary, windowDays int) []string {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if usage.TopicsStudied == 0 {
		return []string{recNoActivity}
	}

	var recs []string
	if usage.TotalMinutes*7 < minMinutesPerWeek*windowDays {
		recs = append(recs, recLowMinutes)
	}
	if usage.ActiveDays*7 < minActiveDaysPerWeek*windowDays {
		recs = append(recs, recFewDays)
	}
	if usage.AvgComprehension > 0 && usage.AvgComprehension < lowComprehension {
		recs = append(recs, recLowScore)
	}
	if len(recs) == 0 {
		recs = append(recs, recKeepGoing)
	}
	return recs
}
