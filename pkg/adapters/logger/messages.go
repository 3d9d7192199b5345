package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Session level messages (info)
		"Rendering project %s":       "プロジェクト %s をレンダリング中",
		"Rendering %d frames to %s":  "%d フレームを %s にレンダリング中",
		"Export progress: %d%%":      "エクスポート進捗: %d%%",
		"Export completed: %s":       "エクスポート完了: %s",
		"Export completed: %d bytes": "エクスポート完了: %d バイト",

		// Warnings
		"Interrupted, cancelling export":               "中断されました。エクスポートをキャンセルします",
		"Frame %d not ready, retrying":                 "フレーム %d が未準備です。再試行します",
		"Audio track written as sidecar %s":            "音声トラックをサイドカー %s として書き出しました",
		"Seek build at frame %d failed: %v":            "フレーム %d のシーク構築に失敗しました: %v",
		"No decode session for clip %s: %v":            "クリップ %s のデコードセッションがありません: %v",
		"Failed to prime clip %s: %v":                  "クリップ %s の先読み開始に失敗しました: %v",
		"Failed to start frame stream for clip %s: %v": "クリップ %s のフレームストリーム開始に失敗しました: %v",
		"Decode error for clip %s: %v":                 "クリップ %s のデコードエラー: %v",
		"Failed to decode sample at %dms: %v":          "%dms のサンプルのデコードに失敗しました: %v",

		// Errors
		"Export failed":     "エクスポートに失敗しました",
		"Export failed: %v": "エクスポートに失敗しました: %v",
	})
}
