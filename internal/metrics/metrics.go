// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期エンジン、レポート生成、ジョブ起動ハンドラーから利用する。
// kindにはmodel.ErrorKindの文字列を渡す。
type MetricsCollector interface {
	RecordAccountSynced()
	RecordAccountFailed(kind string)
	RecordCoursesUpserted(count int)
	RecordCourseWorkUpserted(count int)
	RecordReportGenerated()
	RecordReportSkipped()
	RecordReportFailed(kind string)
	RecordNotifyFailure()
	RecordJobRun(job string, succeeded bool, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	accountsSynced     prometheus.Counter
	accountsFailed     *prometheus.CounterVec
	coursesUpserted    prometheus.Counter
	courseWorkUpserted prometheus.Counter
	reportsGenerated   prometheus.Counter
	reportsSkipped     prometheus.Counter
	reportsFailed      *prometheus.CounterVec
	notifyFailures     prometheus.Counter
	jobRuns            *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		accountsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studysync_accounts_synced_total",
			Help: "同期に成功したアカウントの合計数",
		}),
		accountsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studysync_accounts_failed_total",
			Help: "同期に失敗したアカウントの合計数（エラー種別別）",
		}, []string{"kind"}),
		coursesUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studysync_courses_upserted_total",
			Help: "アップサートされたコースの合計数",
		}),
		courseWorkUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studysync_course_work_upserted_total",
			Help: "アップサートされた課題の合計数",
		}),
		reportsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studysync_reports_generated_total",
			Help: "生成された学習進捗レポートの合計数",
		}),
		reportsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studysync_reports_skipped_total",
			Help: "重複防止によりスキップされたレポートの合計数",
		}),
		reportsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studysync_reports_failed_total",
			Help: "生成に失敗したレポートの合計数（エラー種別別）",
		}, []string{"kind"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studysync_notify_failures_total",
			Help: "通知送信に失敗した合計数",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studysync_job_runs_total",
			Help: "ジョブの実行回数（ジョブ名・成否別）",
		}, []string{"job", "succeeded"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studysync_job_duration_seconds",
			Help:    "ジョブ1回の実行時間（秒）",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"job"}),
	}

	reg.MustRegister(
		c.accountsSynced,
		c.accountsFailed,
		c.coursesUpserted,
		c.courseWorkUpserted,
		c.reportsGenerated,
		c.reportsSkipped,
		c.reportsFailed,
		c.notifyFailures,
		c.jobRuns,
		c.jobDuration,
	)

	return c
}

// RecordAccountSynced は同期に成功したアカウントを記録する。
func (c *Collector) RecordAccountSynced() {
	c.accountsSynced.Inc()
}

// RecordAccountFailed は同期に失敗したアカウントを記録する。
func (c *Collector) RecordAccountFailed(kind string) {
	c.accountsFailed.WithLabelValues(kind).Inc()
}

// RecordCoursesUpserted はアップサートされたコース数を記録する。
func (c *Collector) RecordCoursesUpserted(count int) {
	c.coursesUpserted.Add(float64(count))
}

// RecordCourseWorkUpserted はアップサートされた課題数を記録する。
func (c *Collector) RecordCourseWorkUpserted(count int) {
	c.courseWorkUpserted.Add(float64(count))
}

// RecordReportGenerated は生成されたレポートを記録する。
func (c *Collector) RecordReportGenerated() {
	c.reportsGenerated.Inc()
}

// RecordReportSkipped は重複防止でスキップしたレポートを記録する。
func (c *Collector) RecordReportSkipped() {
	c.reportsSkipped.Inc()
}

// RecordReportFailed は生成に失敗したレポートを記録する。
func (c *Collector) RecordReportFailed(kind string) {
	c.reportsFailed.WithLabelValues(kind).Inc()
}

// RecordNotifyFailure は通知送信の失敗を記録する。
func (c *Collector) RecordNotifyFailure() {
	c.notifyFailures.Inc()
}

// RecordJobRun はジョブ1回分の成否と実行時間を記録する。
func (c *Collector) RecordJobRun(job string, succeeded bool, duration time.Duration) {
	c.jobRuns.WithLabelValues(job, strconv.FormatBool(succeeded)).Inc()
	c.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。ワンショット実行やテストで使用する。
type Nop struct{}

func (Nop) RecordAccountSynced()                      {}
func (Nop) RecordAccountFailed(string)                {}
func (Nop) RecordCoursesUpserted(int)                 {}
func (Nop) RecordCourseWorkUpserted(int)              {}
func (Nop) RecordReportGenerated()                    {}
func (Nop) RecordReportSkipped()                      {}
func (Nop) RecordReportFailed(string)                 {}
func (Nop) RecordNotifyFailure()                      {}
func (Nop) RecordJobRun(string, bool, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
