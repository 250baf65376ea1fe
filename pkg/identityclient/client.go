package identityclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// requestTimeout はIDプロバイダへの1リクエストあたりの最大待ち時間。
// プロバイダが応答しない場合、リクエストはこの時間でエラーになる。
const requestTimeout = 10 * time.Second

// Client はIDプロバイダと通信するHTTPクライアント。
// 状態を持たないため、複数のリクエストから同時に使用しても安全である。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先IDプロバイダのベースURL。
	baseURL string
	// serviceKey は管理API（アカウント作成）の呼び出しに使用するサービスキー。
	serviceKey string
}

// Account はIDプロバイダが管理するアカウント。
type Account struct {
	// ID はアカウントの一意識別子。
	ID string `json:"id"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// Name は表示名。
	Name string `json:"name"`
	// EmailConfirmed はメールアドレスが確認済みかどうか。
	EmailConfirmed bool `json:"email_confirmed"`
}

// Token はサインイン成功時にIDプロバイダが発行するアクセストークン。
type Token struct {
	// AccessToken はBearerトークンとして使用する文字列。
	AccessToken string `json:"access_token"`
	// TokenType はトークンの種別（常に "bearer"）。
	TokenType string `json:"token_type"`
	// ExpiresIn はトークンの有効期間（秒）。
	ExpiresIn int64 `json:"expires_in"`
}

// ProviderError はIDプロバイダがリクエストを拒否したことを表す。
// Messageにはプロバイダが返したエラーメッセージをそのまま保持する。
// 通信障害やプロバイダ内部のエラーはProviderErrorにならない。
type ProviderError struct {
	// StatusCode はプロバイダが返したHTTPステータスコード。
	StatusCode int
	// Message はプロバイダが返したエラーメッセージ。
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	return fmt.Sprintf("IDプロバイダがリクエストを拒否: status=%d, message=%s", e.StatusCode, e.Message)
}

// New は新しいIDプロバイダクライアントを生成する。
// baseURLには接続先identityサービスのベースURL（例: "http://identity:8081"）を、
// serviceKeyには管理APIの呼び出しに使用するサービスキーを指定する。
func New(baseURL, serviceKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL:    baseURL,
		serviceKey: serviceKey,
	}
}

// createAccountRequest はアカウント作成リクエストのJSON構造。
type createAccountRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	EmailConfirm bool   `json:"email_confirm"`
}

// signInRequest はサインインリクエストのJSON構造。
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateAccount はIDプロバイダに新しいアカウントを作成する。
// emailConfirmedがtrueの場合、メール確認済みの状態で作成される。
// メールアドレス重複などでプロバイダが拒否した場合は*ProviderErrorを返す。
func (c *Client) CreateAccount(ctx context.Context, email, password, name string, emailConfirmed bool) (*Account, error) {
	var account Account
	if err := c.doJSON(ctx, http.MethodPost, "/admin/v1/accounts", c.serviceKey, createAccountRequest{
		Email:        email,
		Password:     password,
		Name:         name,
		EmailConfirm: emailConfirmed,
	}, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// VerifyToken はアクセストークンをIDプロバイダに照会し、対応するアカウントを返す。
// トークンが無効・期限切れの場合は*ProviderErrorを返す。
func (c *Client) VerifyToken(ctx context.Context, token string) (*Account, error) {
	var account Account
	if err := c.doJSON(ctx, http.MethodGet, "/v1/account", token, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// SignIn はメールアドレスとパスワードでサインインし、アクセストークンを取得する。
// 認証情報が正しくない場合は*ProviderErrorを返す。
func (c *Client) SignIn(ctx context.Context, email, password string) (*Token, error) {
	var token Token
	if err := c.doJSON(ctx, http.MethodPost, "/v1/token", "", signInRequest{
		Email:    email,
		Password: password,
	}, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// doJSON はJSON形式のHTTPリクエストを実行する共通処理。
// bearerが空でない場合はAuthorizationヘッダーにBearerトークンとして設定する。
// プロバイダが4xxを返しエラーメッセージが読み取れた場合は*ProviderErrorを、
// 通信障害・5xx・不正な応答の場合は通常のエラーを返す。
func (c *Client) doJSON(ctx context.Context, method, path, bearer string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("IDプロバイダへのリクエスト送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
			}
		}
		return nil
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return &ProviderError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
	}

	return fmt.Errorf("IDプロバイダから想定外の応答: status=%d", resp.StatusCode)
}
