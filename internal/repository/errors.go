package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/studysync/internal/model"
)

// storeError はデータベースエラーをmodel.StoreErrorに変換する。
// 接続断やサーバー停止などデータストア自体に到達できないエラーはUnreachableとして扱う。
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &model.StoreError{Op: op, Unreachable: isUnreachable(err), Err: err}
}

// isUnreachable はエラーがデータストアへの到達不能を示すかを判定する。
func isUnreachable(err error) bool {
	// 呼び出し元のキャンセルやタイムアウトはエンティティ単位の失敗として扱う
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		// Class 08: Connection Exception, 57P01-57P03: admin/crash shutdown, cannot connect now
		return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P")
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
