package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// errEmailTaken は同じメールアドレスのアカウントが既に存在することを表す。
var errEmailTaken = errors.New("メールアドレスは既に使用されています")

// account はaccountsテーブルの1行。
type account struct {
	// ID はアカウントの一意識別子。
	ID string
	// Email はメールアドレス。
	Email string
	// Name は表示名。
	Name string
	// PasswordHash はbcryptでハッシュ化されたパスワード。
	PasswordHash string
	// EmailConfirmed はメールアドレスが確認済みかどうか。
	EmailConfirmed bool
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// store はアカウントの永続化を担当する。
type store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// newStore は新しいstoreを生成する。
func newStore(db *sql.DB) *store {
	return &store{db: db}
}

// createAccount は新しいアカウントを挿入する。
// メールアドレスが重複している場合はerrEmailTakenを返す。
func (s *store) createAccount(ctx context.Context, a account) error {
	confirmed := 0
	if a.EmailConfirmed {
		confirmed = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, email_confirmed)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.Email, a.Name, a.PasswordHash, confirmed)
	if err != nil {
		// メールアドレスの一意性はUNIQUE制約で保証する
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errEmailTaken
		}
		return fmt.Errorf("アカウントの挿入に失敗: %w", err)
	}
	return nil
}

// getAccountByID は指定されたIDのアカウントを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (s *store) getAccountByID(ctx context.Context, id string) (account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, email_confirmed, created_at
		FROM accounts
		WHERE id = ?
	`, id)
	return scanAccount(row)
}

// getAccountByEmail は指定されたメールアドレスのアカウントを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (s *store) getAccountByEmail(ctx context.Context, email string) (account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, email_confirmed, created_at
		FROM accounts
		WHERE email = ?
	`, email)
	return scanAccount(row)
}

// scanAccount は1行をaccountに変換する。
func scanAccount(row *sql.Row) (account, error) {
	var a account
	var confirmed int
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &confirmed, &a.CreatedAt); err != nil {
		return account{}, err
	}
	a.EmailConfirmed = confirmed != 0
	return a, nil
}
