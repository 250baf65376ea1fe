// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// CORS設定とパニックリカバリなど、gatewayサービスとidentityサービスで
// 共通して使用するミドルウェアを含む。
package middleware
