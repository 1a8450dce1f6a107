package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/studysync/internal/middleware"
	"github.com/hitoshi/studysync/internal/model"
	"github.com/hitoshi/studysync/internal/worker/report"
	"github.com/hitoshi/studysync/internal/worker/runner"
)

// JobRunner はジョブハンドラーが必要とするジョブ実行のインターフェース。
type JobRunner interface {
	Run(ctx context.Context, job model.JobName, fn runner.Func) (runner.Outcome, error)
}

// JobResponse はジョブ起動エンドポイントのレスポンス。
// エンティティ単位のエラーはSummaryに含まれ、Successには影響しない。
type JobResponse struct {
	Success bool                          `json:"success"`
	Job     model.JobName                 `json:"job"`
	Summary any                           `json:"summary,omitempty"`
	Error   *middleware.ErrorResponseBody `json:"error,omitempty"`
}

// JobHandler はバッチジョブを起動するHTTPハンドラー。
type JobHandler struct {
	runner            JobRunner
	syncer            runner.Syncer
	reports           runner.ReportGenerator
	defaultWindowDays int
	logger            *slog.Logger
}

// NewJobHandler はJobHandlerを生成する。
func NewJobHandler(
	jobRunner JobRunner,
	syncer runner.Syncer,
	reports runner.ReportGenerator,
	defaultWindowDays int,
	logger *slog.Logger,
) *JobHandler {
	if !model.ValidReportWindowDays(defaultWindowDays) {
		defaultWindowDays = report.DefaultWindowDays
	}
	return &JobHandler{
		runner:            jobRunner,
		syncer:            syncer,
		reports:           reports,
		defaultWindowDays: defaultWindowDays,
		logger:            logger,
	}
}

// TriggerClassroomSync はクラスルーム同期ジョブを実行し、完了後にサマリーを返す。
// POST /jobs/classroom-sync
func (h *JobHandler) TriggerClassroomSync(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, model.JobClassroomSync, runner.SyncJob(h.syncer))
}

// TriggerProgressReports は学習進捗レポート生成ジョブを実行し、完了後にサマリーを返す。
// POST /jobs/progress-reports?window_days=N
func (h *JobHandler) TriggerProgressReports(w http.ResponseWriter, r *http.Request) {
	windowDays := h.defaultWindowDays
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !model.ValidReportWindowDays(n) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidWindowError(raw))
			return
		}
		windowDays = n
	}

	h.run(w, r, model.JobProgressReports, runner.ReportJob(h.reports, windowDays))
}

func (h *JobHandler) run(w http.ResponseWriter, r *http.Request, job model.JobName, fn runner.Func) {
	// 呼び出し元が切断してもジョブは最後まで実行する
	ctx := context.WithoutCancel(r.Context())

	out, err := h.runner.Run(ctx, job, fn)
	switch {
	case errors.Is(err, model.ErrJobAlreadyRunning):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewJobAlreadyRunningError(job))
	case err != nil:
		middleware.WriteJSON(w, http.StatusInternalServerError, JobResponse{
			Success: false,
			Job:     job,
			Summary: out.Summary,
			Error:   middleware.NewErrorResponseBody(model.NewJobFailedError(job)),
		})
	default:
		middleware.WriteJSON(w, http.StatusOK, JobResponse{
			Success: true,
			Job:     job,
			Summary: out.Summary,
		})
	}
}
