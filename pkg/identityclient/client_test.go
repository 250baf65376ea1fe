package identityclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestCreateAccount はアカウント作成クライアントを検証する。
func TestCreateAccount(t *testing.T) {
	t.Parallel()

	t.Run("作成に成功した場合にアカウントを返すこと", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("メソッド = %s, want %s", r.Method, http.MethodPost)
			}
			if r.URL.Path != "/admin/v1/accounts" {
				t.Errorf("パス = %s, want %s", r.URL.Path, "/admin/v1/accounts")
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test-service-key" {
				t.Errorf("Authorization = %q, want %q", got, "Bearer test-service-key")
			}

			var req map[string]any
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("リクエストボディのパースに失敗: %v", err)
			}
			if req["email"] != "user@example.com" {
				t.Errorf("email = %v, want %q", req["email"], "user@example.com")
			}
			if req["email_confirm"] != true {
				t.Errorf("email_confirm = %v, want true", req["email_confirm"])
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"acc-1","email":"user@example.com","name":"利用者","email_confirmed":true}`))
		}))
		t.Cleanup(backend.Close)

		c := New(backend.URL, "test-service-key")
		account, err := c.CreateAccount(context.Background(), "user@example.com", "password123", "利用者", true)
		if err != nil {
			t.Fatalf("CreateAccountに失敗: %v", err)
		}
		if account.ID != "acc-1" {
			t.Errorf("ID = %q, want %q", account.ID, "acc-1")
		}
		if account.Name != "利用者" {
			t.Errorf("Name = %q, want %q", account.Name, "利用者")
		}
	})

	t.Run("プロバイダが400で拒否した場合にProviderErrorを返すこと", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"このメールアドレスは既に登録されています"}`))
		}))
		t.Cleanup(backend.Close)

		c := New(backend.URL, "test-service-key")
		_, err := c.CreateAccount(context.Background(), "dup@example.com", "password123", "重複", true)

		var provErr *ProviderError
		if !errors.As(err, &provErr) {
			t.Fatalf("ProviderErrorではない: %v", err)
		}
		if provErr.StatusCode != http.StatusBadRequest {
			t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, http.StatusBadRequest)
		}
		if provErr.Message != "このメールアドレスは既に登録されています" {
			t.Errorf("Message = %q, want %q", provErr.Message, "このメールアドレスは既に登録されています")
		}
	})

	t.Run("プロバイダが500を返した場合はProviderErrorにしないこと", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"内部エラー"}`))
		}))
		t.Cleanup(backend.Close)

		c := New(backend.URL, "test-service-key")
		_, err := c.CreateAccount(context.Background(), "user@example.com", "password123", "利用者", true)
		if err == nil {
			t.Fatal("エラーが返されていない")
		}

		var provErr *ProviderError
		if errors.As(err, &provErr) {
			t.Errorf("プロバイダ内部エラーがProviderErrorに分類されている: %v", err)
		}
	})

	t.Run("エラーボディが読み取れない4xx応答は通常のエラーとすること", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`not json`))
		}))
		t.Cleanup(backend.Close)

		c := New(backend.URL, "test-service-key")
		_, err := c.CreateAccount(context.Background(), "user@example.com", "password123", "利用者", true)
		if err == nil {
			t.Fatal("エラーが返されていない")
		}

		var provErr *ProviderError
		if errors.As(err, &provErr) {
			t.Errorf("不正な応答がProviderErrorに分類されている: %v", err)
		}
	})
}

// TestVerifyToken はトークン検証クライアントを検証する。
func TestVerifyToken(t *testing.T) {
	t.Parallel()

	t.Run("トークンをBearerヘッダーとして送信しアカウントを返すこと", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/account" {
				t.Errorf("パス = %s, want %s", r.URL.Path, "/v1/account")
			}
			if got := r.Header.Get("Authorization"); got != "Bearer some-token" {
				t.Errorf("Authorization = %q, want %q", got, "Bearer some-token")
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":"acc-2","email":"token@example.com","name":"検証","email_confirmed":true}`))
		}))
		t.Cleanup(backend.Close)

		c := New(backend.URL, "test-service-key")
		account, err := c.VerifyToken(context.Background(), "some-token")
		if err != nil {
			t.Fatalf("VerifyTokenに失敗: %v", err)
		}
		if account.ID != "acc-2" {
			t.Errorf("ID = %q, want %q", account.ID, "acc-2")
		}
	})

	t.Run("プロバイダが401で拒否した場合にProviderErrorを返すこと", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"トークンが無効です"}`))
		}))
		t.Cleanup(backend.Close)

		c := New(backend.URL, "test-service-key")
		_, err := c.VerifyToken(context.Background(), "expired-token")

		var provErr *ProviderError
		if !errors.As(err, &provErr) {
			t.Fatalf("ProviderErrorではない: %v", err)
		}
		if provErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, http.StatusUnauthorized)
		}
	})
}

// TestSignIn はサインインクライアントを検証する。
func TestSignIn(t *testing.T) {
	t.Parallel()

	t.Run("サインインに成功した場合にトークンを返すこと", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/token" {
				t.Errorf("パス = %s, want %s", r.URL.Path, "/v1/token")
			}
			// サインインはサービスキーを使用しない
			if got := r.Header.Get("Authorization"); got != "" {
				t.Errorf("Authorization = %q, want empty string", got)
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"access_token":"jwt-token","token_type":"bearer","expires_in":86400}`))
		}))
		t.Cleanup(backend.Close)

		c := New(backend.URL, "test-service-key")
		token, err := c.SignIn(context.Background(), "user@example.com", "password123")
		if err != nil {
			t.Fatalf("SignInに失敗: %v", err)
		}
		if token.AccessToken != "jwt-token" {
			t.Errorf("AccessToken = %q, want %q", token.AccessToken, "jwt-token")
		}
		if token.TokenType != "bearer" {
			t.Errorf("TokenType = %q, want %q", token.TokenType, "bearer")
		}
		if token.ExpiresIn != 86400 {
			t.Errorf("ExpiresIn = %d, want %d", token.ExpiresIn, 86400)
		}
	})

	t.Run("プロバイダに接続できない場合は通常のエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		backend.Close() // 接続先を先に閉じて通信障害を再現する

		c := New(backend.URL, "test-service-key")
		_, err := c.SignIn(context.Background(), "user@example.com", "password123")
		if err == nil {
			t.Fatal("エラーが返されていない")
		}

		var provErr *ProviderError
		if errors.As(err, &provErr) {
			t.Errorf("通信障害がProviderErrorに分類されている: %v", err)
		}
	})
}
