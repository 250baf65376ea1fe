package gateway

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ecoponto/ecoponto/pkg/identityclient"
	"github.com/ecoponto/ecoponto/pkg/middleware"
)

// Server はアカウント・セッションゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// identity はIDプロバイダへのHTTPクライアント。
	// 起動時に注入され、ハンドラが自前でクライアントを生成することはない。
	identity *identityclient.Client
}

// NewServer は新しいゲートウェイサーバーを生成する。
func NewServer(port string) (*Server, error) {
	identityURL := getEnvOr("IDENTITY_URL", "http://localhost:8081")
	serviceKey := getEnvOr("IDENTITY_SERVICE_KEY", "dev-service-key")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	// 公開ゲートウェイのため、すべてのオリジンからのアクセスを許可する
	router.Use(middleware.CORS(nil))

	s := &Server{
		router:   router,
		port:     port,
		identity: identityclient.New(identityURL, serviceKey),
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		// アカウント作成
		api.POST("/signup", s.handleSignup())
		// サインイン（アクセストークン取得）
		api.POST("/signin", s.handleSignin())
		// 認証済みユーザーのプロフィール取得
		api.GET("/profile", s.handleProfile())
		// ヘルスチェック
		api.GET("/health", s.handleHealth())
	}

	// liveness probe用にルート直下でもヘルスチェックを提供する
	s.router.GET("/health", s.handleHealth())
}

// signupRequest はアカウント作成リクエストのJSON構造。
// 3つのフィールドはすべて必須。存在チェック以外の形式検証
// （メールアドレスの形式、パスワードの強度）はIDプロバイダに委ねる。
type signupRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
	// Name は表示名。
	Name string `json:"name" binding:"required"`
}

// signinRequest はサインインリクエストのJSON構造。
type signinRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
}

// signupUserResponse は作成されたアカウントのJSONレスポンス構造。
type signupUserResponse struct {
	// ID はアカウントの一意識別子。
	ID string `json:"id"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// Name は表示名。
	Name string `json:"name"`
}

// handleSignup はアカウント作成を処理するハンドラを返す。
// 入力の存在チェックに失敗した場合はIDプロバイダを呼び出さずに400を返す。
// プロバイダが拒否した場合（メールアドレス重複など）はその理由をそのまま返す。
func (s *Server) handleSignup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email・password・nameはすべて必須です"})
			return
		}

		// メール確認済みの状態でアカウントを作成する（確認メールのフローは持たない）
		account, err := s.identity.CreateAccount(c.Request.Context(), req.Email, req.Password, req.Name, true)
		if err != nil {
			var provErr *identityclient.ProviderError
			if errors.As(err, &provErr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": provErr.Message})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "アカウント作成中に内部エラーが発生しました"})
			log.Printf("アカウント作成エラー: %v", err)
			return
		}

		// nameは入力のエコーではなく、プロバイダが保存した値を返す
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"user": signupUserResponse{
				ID:    account.ID,
				Email: account.Email,
				Name:  account.Name,
			},
		})
	}
}

// handleSignin はサインインを処理するハンドラを返す。
// 認証の成否はIDプロバイダが判断し、ゲートウェイは失敗の理由を区別せずに
// 常に同じメッセージで401を返す。
func (s *Server) handleSignin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "emailとpasswordは必須です"})
			return
		}

		token, err := s.identity.SignIn(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			var provErr *identityclient.ProviderError
			if errors.As(err, &provErr) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが正しくありません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "サインイン中に内部エラーが発生しました"})
			log.Printf("サインインエラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token": token.AccessToken,
			"token_type":   token.TokenType,
			"expires_in":   token.ExpiresIn,
		})
	}
}

// handleProfile は認証済みユーザーのプロフィール取得を処理するハンドラを返す。
// 検証結果はキャッシュせず、毎回IDプロバイダに照会する。トークンの失効が
// 即座に反映されることをレイテンシより優先する。
func (s *Server) handleProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証トークンがありません"})
			return
		}

		account, err := s.identity.VerifyToken(c.Request.Context(), token)
		if err != nil {
			var provErr *identityclient.ProviderError
			if errors.As(err, &provErr) {
				// 拒否理由（期限切れ・改ざんなど）は区別せず、常に同じ応答を返す
				c.JSON(http.StatusUnauthorized, gin.H{"error": "認証に失敗しました"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィール取得中に内部エラーが発生しました"})
			log.Printf("トークン検証エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":    account.ID,
			"email": account.Email,
			"name":  account.Name,
		})
	}
}

// handleHealth はヘルスチェックを処理するハンドラを返す。
// 依存サービスには接続せず、常に200を返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// ヘッダーが無い、またはBearer形式でない場合はfalseを返す。
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}

	token, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
