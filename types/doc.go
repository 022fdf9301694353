// Copyright (c) HIDO Authors.

/*
Package types 提供 HIDO 决策服务的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 consensus、audit、policy、
api 等上层模块提供统一的类型契约，避免循环依赖。

# 核心类型

  - SemanticIntent    — 待决策的语义意图（动作、优先级、参数、约束、过期时间）
  - IntentDomain      — 意图领域（data / compute / communication / coordination）
  - IntentPriority    — 意图优先级（low / normal / high / critical）
  - Error / ErrorCode — 结构化错误，携带 HTTP 状态码、Retryable 与组件标记

# 主要能力

  - 意图构造：NewIntent 以及 WithParam / WithPriority / WithExpiration 等不可变修改器
  - Context 传播：WithTraceID / WithRequestID / WithTenantID / WithUserID / WithRoles
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
*/
package types
