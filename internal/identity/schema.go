package identity

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    -- アカウントの一意識別子
    id TEXT PRIMARY KEY,
    -- メールアドレス（全アカウントで一意）
    email TEXT NOT NULL UNIQUE,
    -- 表示名
    name TEXT NOT NULL,
    -- bcryptでハッシュ化されたパスワード
    password_hash TEXT NOT NULL,
    -- メールアドレスが確認済みかどうか
    email_confirmed INTEGER NOT NULL DEFAULT 0,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
