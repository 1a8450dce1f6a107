// Package coursesync は連携済みアカウントごとに外部クラスルームのコースと課題を
// ローカルにミラーする同期ジョブを提供する。
// アカウント単位で失敗を隔離し、1アカウントの失敗が他のアカウントの処理を止めることはない。
package coursesync

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/studysync/internal/auth"
	"github.com/hitoshi/studysync/internal/classroom"
	"github.com/hitoshi/studysync/internal/metrics"
	"github.com/hitoshi/studysync/internal/model"
	"github.com/hitoshi/studysync/internal/repository"
)

// ClassroomLister は外部クラスルームAPIの読み取りインターフェース。
// テスト時にモックに差し替え可能。
type ClassroomLister interface {
	ListActiveCourses(ctx context.Context, accessToken string) ([]classroom.Course, error)
	ListCourseWork(ctx context.Context, accessToken, courseID string) ([]classroom.CourseWork, error)
}

// errCourseNotSynced はローカルのコースIDが解決できないことを表す。
var errCourseNotSynced = errors.New("course is not synced locally")

// Engine はクラスルーム同期ジョブの本体。
type Engine struct {
	credRepo       repository.CredentialRepository
	courseRepo     repository.CourseRepository
	workRepo       repository.CourseWorkRepository
	refresher      auth.Refresher
	client         ClassroomLister
	mapper         *classroom.Mapper
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	maxConcurrency int
}

// NewEngine はEngineの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合は1（逐次処理）を使用する。
func NewEngine(
	credRepo repository.CredentialRepository,
	courseRepo repository.CourseRepository,
	workRepo repository.CourseWorkRepository,
	refresher auth.Refresher,
	client ClassroomLister,
	mapper *classroom.Mapper,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxConcurrency int,
) *Engine {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Engine{
		credRepo:       credRepo,
		courseRepo:     courseRepo,
		workRepo:       workRepo,
		refresher:      refresher,
		client:         client,
		mapper:         mapper,
		metrics:        collector,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// accountResult はアカウント1件分の同期結果。
type accountResult struct {
	synced  bool
	courses int
	works   int
	errors  []model.AccountError
	// fatal はデータストア到達不能など、実行全体を中断すべき障害。
	fatal error
}

func (r *accountResult) record(userID, courseID string, err error) {
	r.errors = append(r.errors, model.AccountError{
		UserID:   userID,
		CourseID: courseID,
		Kind:     string(model.ErrorKindOf(err)),
		Error:    err.Error(),
	})
}

// SyncAll は連携済みの全アカウントを同期し、実行サマリーを返す。
// アカウント単位・コース単位の失敗はサマリーのErrorsに記録して処理を継続する。
// データストアに到達できない場合は残りのアカウントをキャンセルしてエラーを返す。
func (e *Engine) SyncAll(ctx context.Context) (model.SyncRunSummary, error) {
	start := time.Now()
	summary := model.SyncRunSummary{Errors: []model.AccountError{}}

	creds, err := e.credRepo.ListLinked(ctx)
	if err != nil {
		return summary, fmt.Errorf("連携済みアカウントの取得に失敗: %w", err)
	}
	summary.TotalCount = len(creds)

	if len(creds) == 0 {
		e.logger.Info("同期対象の連携済みアカウントはありません")
		return summary, nil
	}

	e.logger.Info("クラスルーム同期を開始します",
		slog.Int("account_count", len(creds)),
		slog.Int("max_concurrency", e.maxConcurrency),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)

	for _, cred := range creds {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := e.syncAccount(gctx, *cred)

			mu.Lock()
			defer mu.Unlock()
			if res.fatal != nil {
				return res.fatal
			}
			if res.synced {
				summary.SyncedCount++
			}
			summary.CoursesUpserted += res.courses
			summary.CourseWorkUpserts += res.works
			summary.Errors = append(summary.Errors, res.errors...)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.logger.Error("データストアに到達できないため、クラスルーム同期を中断しました",
			slog.String("error", err.Error()),
		)
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("クラスルーム同期がキャンセルされました: %w", err)
	}

	slices.SortStableFunc(summary.Errors, func(a, b model.AccountError) int {
		return cmp.Or(cmp.Compare(a.UserID, b.UserID), cmp.Compare(a.CourseID, b.CourseID))
	})

	e.logger.Info("クラスルーム同期が完了しました",
		slog.Int("synced_count", summary.SyncedCount),
		slog.Int("total_count", summary.TotalCount),
		slog.Int("courses_upserted", summary.CoursesUpserted),
		slog.Int("course_work_upserted", summary.CourseWorkUpserts),
		slog.Int("error_count", len(summary.Errors)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return summary, nil
}

// syncAccount は1アカウント分の同期を行う。
// 資格情報の更新 → コース一覧取得 → 全コースのUPSERT → コースごとの課題同期 の順に進む。
// コースのUPSERTがすべて終わってから課題の同期を始める。
func (e *Engine) syncAccount(ctx context.Context, cred model.ExternalCredential) accountResult {
	var res accountResult
	userID := cred.UserID
	logger := e.logger.With(slog.String("user_id", userID))

	fail := func(err error) accountResult {
		if model.IsStoreUnreachable(err) {
			res.fatal = err
			return res
		}
		res.record(userID, "", err)
		e.metrics.RecordAccountFailed(string(model.ErrorKindOf(err)))
		logger.Warn("アカウントの同期に失敗しました",
			slog.String("kind", string(model.ErrorKindOf(err))),
			slog.String("error", err.Error()),
		)
		return res
	}

	refreshed, err := e.refresher.Refresh(ctx, cred)
	if err != nil {
		return fail(err)
	}
	if refreshed.AccessToken != cred.AccessToken || !refreshed.Expiry.Equal(cred.Expiry) {
		// 更新後のトークンを保存してから外部APIを呼び出す
		if err := e.credRepo.UpdateToken(ctx, &refreshed); err != nil {
			return fail(err)
		}
		logger.Info("アクセストークンを更新しました", slog.Time("expiry", refreshed.Expiry))
	}
	token := refreshed.AccessToken

	remoteCourses, err := e.client.ListActiveCourses(ctx, token)
	if err != nil {
		return fail(err)
	}

	var upserted []string
	for _, rc := range remoteCourses {
		course, err := e.mapper.ToCourse(userID, rc)
		if err != nil {
			res.record(userID, rc.ID, err)
			continue
		}
		if _, err := e.courseRepo.Upsert(ctx, course); err != nil {
			if model.IsStoreUnreachable(err) {
				res.fatal = err
				return res
			}
			res.record(userID, rc.ID, err)
			continue
		}
		res.courses++
		upserted = append(upserted, course.ExternalID)
	}
	e.metrics.RecordCoursesUpserted(res.courses)

	for _, externalID := range upserted {
		n, errs, fatal := e.syncCourseWork(ctx, token, userID, externalID)
		if fatal != nil {
			res.fatal = fatal
			return res
		}
		res.works += n
		for _, err := range errs {
			res.record(userID, externalID, err)
		}
	}
	e.metrics.RecordCourseWorkUpserted(res.works)

	res.synced = true
	e.metrics.RecordAccountSynced()
	logger.Info("アカウントの同期が完了しました",
		slog.Int("courses_upserted", res.courses),
		slog.Int("course_work_upserted", res.works),
		slog.Int("error_count", len(res.errors)),
	)
	return res
}

// syncCourseWork は1コース分の課題を同期する。
// 課題はローカルのコースIDで参照するため、UPSERT前に外部IDからローカルIDを解決する。
// 解決できない場合はこのコースの課題同期のみ失敗とする。
func (e *Engine) syncCourseWork(ctx context.Context, token, userID, externalCourseID string) (int, []error, error) {
	localID, err := e.courseRepo.FindIDByExternalID(ctx, userID, externalCourseID)
	if err != nil {
		if model.IsStoreUnreachable(err) {
			return 0, nil, err
		}
		return 0, []error{err}, nil
	}
	if localID == "" {
		return 0, []error{&model.StoreError{Op: "find course id", Err: errCourseNotSynced}}, nil
	}

	works, err := e.client.ListCourseWork(ctx, token, externalCourseID)
	if err != nil {
		return 0, []error{err}, nil
	}

	var (
		upserted int
		errs     []error
	)
	for _, w := range works {
		work, err := e.mapper.ToCourseWork(userID, localID, w)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := e.workRepo.Upsert(ctx, work); err != nil {
			if model.IsStoreUnreachable(err) {
				return upserted, errs, err
			}
			errs = append(errs, err)
			continue
		}
		upserted++
	}
	return upserted, errs, nil
}
