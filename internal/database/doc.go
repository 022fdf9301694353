// 版权所有 2026 HIDO Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为审计账本提供基于 GORM 的数据库连接。

# 概述

Open 根据驱动名（postgres、mysql、sqlite）选择 GORM 方言，
GORM 日志写入 zap。PoolManager 负责连接池参数、后台健康检查
与统计采集，统计结果可通过 StatsObserver 写入 Prometheus。

sqlite 使用 github.com/glebarez/sqlite，不依赖 cgo。
*/
package database
