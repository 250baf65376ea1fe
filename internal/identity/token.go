package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessTokenTTL はアクセストークンの有効期間。
const accessTokenTTL = 24 * time.Hour

// accessClaims はアクセストークンのクレーム（ペイロード）を表す。
type accessClaims struct {
	jwt.RegisteredClaims
	// Email はアカウントのメールアドレス。
	Email string `json:"email"`
}

// tokenIssuer はアクセストークンの発行と検証を行う。
// トークンを発行・検証できるのはidentityサービスのみであり、
// ゲートウェイはトークンを不透明な文字列として扱う。
type tokenIssuer struct {
	// secret はHS256署名用の秘密鍵。
	secret string
}

// newTokenIssuer は新しいtokenIssuerを生成する。
func newTokenIssuer(secret string) *tokenIssuer {
	return &tokenIssuer{secret: secret}
}

// issue はアカウントに対するアクセストークンを発行する。
func (t *tokenIssuer) issue(accountID, email string) (string, error) {
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "ecoponto-identity",
		},
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(t.secret))
	if err != nil {
		return "", fmt.Errorf("アクセストークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// verify はアクセストークンを検証し、アカウントIDを返す。
// 署名不正・期限切れの場合はエラーを返す。
func (t *tokenIssuer) verify(tokenString string) (string, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(t.secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("アクセストークンの検証に失敗: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("アクセストークンが無効")
	}
	return claims.Subject, nil
}
