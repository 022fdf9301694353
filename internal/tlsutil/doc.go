// Package tlsutil 提供集中式 TLS 配置（TLS 1.2+，仅 AEAD 密码套件），
// 供决策服务监听端口、Redis 连接与 CLI 健康探测共用。
package tlsutil
