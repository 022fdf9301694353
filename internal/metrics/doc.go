// 版权所有 2026 HIDO Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的决策服务指标采集能力。

# 概述

Collector 通过 promauto 注册到默认 Registry，所有指标按 namespace
隔离。它实现 consensus.Observer，由 consensus.Service 在每次决策后回调；
同时实现 recommender.CacheObserver，记录推荐缓存命中情况。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 决策指标：按 decision_type/escalated 计数的决策总数、置信度分布、
    引擎耗时、共识达成情况、按类型统计的选票数。
  - 护栏指标：按 category/action 统计触发的规则。
  - 审计与策略：审计写入与策略重载的成功/失败计数。
  - 缓存与数据库：缓存命中/未命中、连接池活跃/空闲连接数。
*/
package metrics
