// Package classroom は外部クラスルームサービスの読み取り専用APIクライアントと、
// レスポンスからドメインモデルへの型付きマッピングを提供する。
package classroom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/studysync/internal/model"
)

const (
	// defaultBaseURL は外部クラスルームAPIのベースURL。
	defaultBaseURL = "https://classroom.googleapis.com"
	// maxResponseBytes はレスポンスボディの最大サイズ（10MB）。
	maxResponseBytes = 10 * 1024 * 1024
)

// ClientConfig はClientの設定。
type ClientConfig struct {
	BaseURL  string        // テスト用に差し替え可能
	PageSize int           // 1ページあたりの件数
	MaxPages int           // ページネーションの上限。超えた場合はエラーとする
	Timeout  time.Duration // 1リクエストあたりのタイムアウト
	Rate     float64       // 1秒あたりのリクエスト数。0以下の場合は無制限
	Burst    int
}

// Client は外部クラスルームAPIの読み取り専用クライアント。
// すべてのリクエストはレートリミッタを通過し、ページネーションは最後まで取得してから返す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	pageSize   int
	maxPages   int
	timeout    time.Duration
	limiter    *rate.Limiter
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, cfg ClientConfig, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		pageSize:   cfg.PageSize,
		maxPages:   cfg.MaxPages,
		timeout:    cfg.Timeout,
		limiter:    rate.NewLimiter(limit, cfg.Burst),
	}
}

// ListActiveCourses は認証済みアカウントの有効なコースをすべて取得する。
func (c *Client) ListActiveCourses(ctx context.Context, accessToken string) ([]Course, error) {
	const op = "list courses"

	var courses []Course
	err := c.paginate(ctx, op, "/v1/courses", url.Values{"courseStates": {courseStateActive}}, accessToken,
		func(body []byte) (string, error) {
			var page listCoursesResponse
			if err := json.Unmarshal(body, &page); err != nil {
				return "", &model.MappingError{Entity: "course", Field: "courses", Reason: err.Error()}
			}
			courses = append(courses, page.Courses...)
			return page.NextPageToken, nil
		})
	if err != nil {
		return nil, err
	}
	return courses, nil
}

// ListCourseWork は指定コース（外部ID）の課題をすべて取得する。
func (c *Client) ListCourseWork(ctx context.Context, accessToken, courseID string) ([]CourseWork, error) {
	const op = "list course work"

	var works []CourseWork
	path := "/v1/courses/" + url.PathEscape(courseID) + "/courseWork"
	err := c.paginate(ctx, op, path, url.Values{}, accessToken,
		func(body []byte) (string, error) {
			var page listCourseWorkResponse
			if err := json.Unmarshal(body, &page); err != nil {
				return "", &model.MappingError{Entity: "course_work", ExternalID: courseID, Field: "courseWork", Reason: err.Error()}
			}
			works = append(works, page.CourseWork...)
			return page.NextPageToken, nil
		})
	if err != nil {
		return nil, err
	}
	return works, nil
}

// paginate はnextPageTokenが空になるまでページを取得し、各ページをhandleに渡す。
// 途中のページで失敗した場合は取得済みのページも含めてエラーとする。
func (c *Client) paginate(
	ctx context.Context,
	op, path string,
	query url.Values,
	accessToken string,
	handle func(body []byte) (string, error),
) error {
	query.Set("pageSize", strconv.Itoa(c.pageSize))

	pageToken := ""
	seen := make(map[string]bool)
	for page := 1; ; page++ {
		if page > c.maxPages {
			return &model.TransportError{Op: op, Err: fmt.Errorf("ページ数が上限 %d を超えました", c.maxPages)}
		}

		if pageToken != "" {
			query.Set("pageToken", pageToken)
		} else {
			query.Del("pageToken")
		}

		body, err := c.get(ctx, op, path, query, accessToken)
		if err != nil {
			return err
		}

		next, err := handle(body)
		if err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		if seen[next] {
			return &model.TransportError{Op: op, Err: fmt.Errorf("同じページトークンが繰り返し返されました: %s", next)}
		}
		seen[next] = true
		pageToken = next
	}
}

// get はレート制限とタイムアウトを適用してGETリクエストを1回実行する。
func (c *Client) get(ctx context.Context, op, path string, query url.Values, accessToken string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reqURL := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "StudySync/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("クラスルームAPIの呼び出しに失敗しました",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return nil, &model.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &model.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)}
	}

	c.logger.Debug("クラスルームAPI呼び出し",
		slog.String("op", op),
		slog.Int("http_status", resp.StatusCode),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("クラスルームAPIがステータス %d を返しました", resp.StatusCode),
		}
	}

	return body, nil
}
