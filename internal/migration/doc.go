// 版权所有 2026 HIDO Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理审计账本表 audit_entries 的 Schema 迁移，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 文件通过 embed.FS 内嵌在 migrations/<type>/ 下，
列定义与 audit.Entry 的 GORM 标签一致。服务启动时若开启
database.auto_migrate 会自动执行 Up，也可以通过 hido migrate
子命令手动管理。

# 核心类型

  - Migrator / DefaultMigrator：Up/Down/Steps/Goto/Force/Status/Info。
  - CLI：把迁移结果格式化输出到终端。
  - NewMigratorFromDatabaseConfig：由 config.DatabaseConfig 构造迁移器。

SQLite 使用已注册为 "sqlite" 的纯 Go 驱动，调用方需要在二进制中
链接该驱动。
*/
package migration
