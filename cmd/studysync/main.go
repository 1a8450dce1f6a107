// Command studysync はクラスルーム同期と学習進捗レポート生成を行うバッチサービス。
//
// サブコマンド:
//
//	serve       ジョブ起動用のHTTPサーバー（デフォルト）
//	worker      cronスケジュールでジョブを実行する
//	migrate     データベースマイグレーションを適用する
//	sync        クラスルーム同期を1回実行して終了する
//	report [N]  直近N日間の学習進捗レポートを1回生成して終了する
//	healthcheck /health を確認する（Dockerヘルスチェック用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/studysync/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "studysync: %v\n", err)
		os.Exit(1)
	}
}
