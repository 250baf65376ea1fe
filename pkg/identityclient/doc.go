// Package identityclient はIDプロバイダ（identityサービス）と通信するクライアントを提供する。
//
// gatewayサービスがアカウント作成・トークン検証・サインインを委譲する際に使用する。
// プロバイダのワイヤーフォーマットを知るのはこのパッケージのみであり、
// プロバイダによる拒否（*ProviderError）と通信障害（それ以外のエラー）を
// 区別して呼び出し元に返す。
package identityclient
