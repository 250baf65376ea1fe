// Package gateway はアカウント・セッションゲートウェイの内部実装を提供する。
//
// サインアップ・サインイン・プロフィール取得の各エンドポイントを公開し、
// 入力の検証とエラー形式の正規化のみを行い、アカウントとトークンの管理は
// すべてIDプロバイダ（identityサービス）に委譲する。リクエストをまたぐ
// 状態は一切持たないステートレスな仲介者である。
package gateway
