// IDプロバイダサービスのエントリポイント。
// アカウントの保管、パスワード認証、アクセストークンの発行と検証を担当する。
// ゲートウェイからのみ呼び出され、外部には公開しない。
package main

import (
	"log"
	"os"

	"github.com/ecoponto/ecoponto/internal/identity"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server, err := identity.NewServer(port)
	if err != nil {
		log.Fatalf("Identityサーバーの初期化に失敗: %v", err)
	}

	log.Printf("Identityサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("Identityサービスの起動に失敗: %v", err)
	}
}
