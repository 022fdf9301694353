// Copyright (c) HIDO Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 HIDO HTTP API 的请求处理器实现。

# 概述

所有 Handler 依赖 consensus、audit、policy 暴露的小接口，
通过 RegisterRoutes 挂载到 Go 1.22 风格的 http.ServeMux 路由上。
写操作与运维接口可以传入 Guard（通常为 RequireRole(RoleOperator)）。

# 核心类型

  - DecisionHandler  — 提交决策、查询指标、WebSocket 决策流
  - VoterHandler     — 投票者注册、注销、拜占庭容错信息
  - RuleHandler      — 护栏规则增删、统计与违规记录
  - AuditHandler     — 审计链查询、链头与完整性校验
  - AdminHandler     — 脱敏配置视图与策略文件重载
  - HealthHandler    — /health、/ready、/version
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）

# 错误映射

types.ErrorCode 通过 mapErrorCodeToHTTPStatus 映射为 HTTP 状态码；
非 types.Error 的错误统一返回 500 且不暴露内部信息。
*/
package handlers
