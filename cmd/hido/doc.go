// Copyright (c) HIDO Authors.
// Licensed under the MIT License.

/*
Package main 提供 HIDO 决策服务的程序入口。

# 概述

cmd/hido 组装共识引擎、护栏策略、推荐器与审计账本，对外提供 HTTP API，
并附带数据库迁移、策略校验、审计链校验、健康检查与版本查询等子命令。

# 核心类型

  - Server       — 组件装配与 HTTP、Metrics 双端口的生命周期
  - Middleware   — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - auditStores  — 审计后端与底层数据库连接池

# 主要能力

  - 子命令：serve、migrate、rules validate、audit verify、version、health
  - 启动时读取 .env，随后按 默认值 → YAML → HIDO_* 环境变量 加载配置
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、Metrics、
    OTelTracing、CORS、RateLimiter、APIKeyAuth、JWTAuth
  - 启用 JWT 时，投票者与规则的写操作以及运维接口需要 operator 角色
  - 优雅关闭：信号 → 停止接收请求 → 停止策略监听 → 关闭审计存储、缓存与遥测
*/
package main
