package identity

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
	"github.com/ecoponto/ecoponto/pkg/middleware"
)

// Server はIDプロバイダサービスのHTTPサーバー。
// アカウントの保管・パスワード認証・アクセストークンの発行と検証を担当する。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はアカウントの永続化を担当する。
	store *store
	// db はSQLiteデータベース接続。
	db *sql.DB
	// tokens はアクセストークンの発行と検証を行う。
	tokens *tokenIssuer
	// serviceKey は管理APIの呼び出し元（ゲートウェイ）を認証するキー。
	serviceKey string
}

// NewServer は新しいIDプロバイダサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := getEnvOr("IDENTITY_DB_PATH", "/data/identity.db")
	sqlDB, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	jwtSecret := getEnvOr("JWT_SECRET", "dev-secret-key")
	serviceKey := getEnvOr("IDENTITY_SERVICE_KEY", "dev-service-key")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:     router,
		port:       port,
		store:      newStore(sqlDB),
		db:         sqlDB,
		tokens:     newTokenIssuer(jwtSecret),
		serviceKey: serviceKey,
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
	// 管理API（ゲートウェイがサービスキーで呼び出す）
	admin := s.router.Group("/admin/v1")
	admin.Use(s.serviceKeyAuth())
	{
		// アカウント作成
		admin.POST("/accounts", s.handleCreateAccount())
	}

	v1 := s.router.Group("/v1")
	{
		// サインイン（アクセストークン発行）
		v1.POST("/token", s.handleIssueToken())
		// アクセストークンの検証とアカウント解決
		v1.GET("/account", s.handleGetAccount())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// serviceKeyAuth は管理APIの呼び出し元がサービスキーを持つことを検証するミドルウェアを返す。
func (s *Server) serviceKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || key != s.serviceKey {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "サービスキーが必要です"})
			return
		}
		c.Next()
	}
}

// createAccountRequest はアカウント作成リクエストのJSON構造。
type createAccountRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
	// Name は表示名。
	Name string `json:"name" binding:"required"`
	// EmailConfirm はメール確認済みとしてアカウントを作成するかどうか。
	EmailConfirm bool `json:"email_confirm"`
}

// tokenRequest はサインインリクエストのJSON構造。
type tokenRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
}

// accountResponse はアカウントのJSONレスポンス構造。
// パスワードハッシュは決して含めない。
type accountResponse struct {
	// ID はアカウントの一意識別子。
	ID string `json:"id"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// Name は表示名。
	Name string `json:"name"`
	// EmailConfirmed はメールアドレスが確認済みかどうか。
	EmailConfirmed bool `json:"email_confirmed"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
}

// toAccountResponse はDB行をJSONレスポンスに変換する。
func toAccountResponse(a account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Email:          a.Email,
		Name:           a.Name,
		EmailConfirmed: a.EmailConfirmed,
		CreatedAt:      a.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// handleCreateAccount はアカウント作成を処理するハンドラを返す。
// パスワードはbcryptでハッシュ化して保存し、平文は保持もログ出力もしない。
func (s *Server) handleCreateAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email・password・nameはすべて必須です"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "アカウントの作成に失敗しました"})
			log.Printf("パスワードハッシュ生成エラー: %v", err)
			return
		}

		accountID := uuid.New().String()
		if err := s.store.createAccount(c.Request.Context(), account{
			ID:             accountID,
			Email:          req.Email,
			Name:           req.Name,
			PasswordHash:   string(hash),
			EmailConfirmed: req.EmailConfirm,
		}); err != nil {
			if errors.Is(err, errEmailTaken) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "このメールアドレスは既に登録されています"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "アカウントの作成に失敗しました"})
			log.Printf("アカウント作成エラー: %v", err)
			return
		}

		// 作成したアカウントをDBから取得してレスポンスを返す
		created, err := s.store.getAccountByID(c.Request.Context(), accountID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "作成したアカウントの取得に失敗しました"})
			log.Printf("アカウント取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toAccountResponse(created))
	}
}

// handleIssueToken はサインインを処理するハンドラを返す。
// 認証情報の誤りは存在しないメールアドレスとパスワード不一致を区別せず、
// 同じメッセージで401を返す。
func (s *Server) handleIssueToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "emailとpasswordは必須です"})
			return
		}

		a, err := s.store.getAccountByEmail(c.Request.Context(), req.Email)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが正しくありません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "サインインに失敗しました"})
			log.Printf("アカウント取得エラー: %v", err)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが正しくありません"})
			return
		}

		if !a.EmailConfirmed {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスが確認されていません"})
			return
		}

		token, err := s.tokens.issue(a.ID, a.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
			log.Printf("トークン発行エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token": token,
			"token_type":   "bearer",
			"expires_in":   int64(accessTokenTTL.Seconds()),
		})
	}
}

// handleGetAccount はアクセストークンの検証とアカウント解決を処理するハンドラを返す。
func (s *Server) handleGetAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証トークンがありません"})
			return
		}

		accountID, err := s.tokens.verify(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "トークンが無効です"})
			return
		}

		a, err := s.store.getAccountByID(c.Request.Context(), accountID)
		if err == sql.ErrNoRows {
			// トークンは有効でもアカウントが削除済みの場合は認証エラーとする
			c.JSON(http.StatusUnauthorized, gin.H{"error": "トークンが無効です"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "アカウントの取得に失敗しました"})
			log.Printf("アカウント取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toAccountResponse(a))
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
