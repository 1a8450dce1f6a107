package app

import (
	"fmt"
	"io"
)

// Command はstudysyncのサブコマンド名。
type Command string

const (
	CommandServe       Command = "serve"
	CommandWorker      Command = "worker"
	CommandMigrate     Command = "migrate"
	CommandHealthcheck Command = "healthcheck"
	CommandSync        Command = "sync"
	CommandReport      Command = "report"
)

// commandTable はサブコマンドと使い方の説明。表示順を保つためスライスで持つ。
var commandTable = []struct {
	cmd   Command
	usage string
}{
	{CommandServe, "ジョブ起動用のHTTPサーバーを起動する (既定)"},
	{CommandWorker, "cronスケジュールで同期・レポート生成を実行する"},
	{CommandMigrate, "データベースマイグレーションを適用する"},
	{CommandSync, "クラスルーム同期を1回実行してサマリーを出力する"},
	{CommandReport, "学習進捗レポートを1回生成する。第2引数で集計日数を指定できる"},
	{CommandHealthcheck, "稼働中のサーバーの /health を確認する"},
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 何も指定されていないか知らない名前の場合はserveとみなす。
func ParseCommand(args []string) Command {
	if len(args) > 0 {
		for _, c := range commandTable {
			if string(c.cmd) == args[0] {
				return c.cmd
			}
		}
	}
	return CommandServe
}

// wantsHelp は使い方の表示が要求されたかを返す。
func wantsHelp(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "help", "-h", "--help":
		return true
	}
	return false
}

// PrintUsage はサブコマンドの一覧をwに書き出す。
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: studysync <command> [args]")
	fmt.Fprintln(w)
	for _, c := range commandTable {
		fmt.Fprintf(w, "  %-12s %s\n", c.cmd, c.usage)
	}
}
