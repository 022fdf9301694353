// 版权所有 2026 HIDO Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package audit 提供决策解释的只追加审计账本。

每条 Entry 通过 PrevHash 链接上一条记录，Hash 为链接字段经
RFC 8785 规范化 JSON 后的 SHA-256 摘要。任何篡改都会在 Verify 时暴露。

# 存储后端

  - MemoryStore: 进程内存储，用于测试与单机部署
  - GormStore: 通过 GORM 写入 PostgreSQL / MySQL / SQLite
  - MongoStore: 写入 MongoDB 集合
  - MultiStore: 并发扇出写入多个后端，读取走主后端

# 账本

Ledger 实现 consensus.AuditSink，串行化追加并维护链尾，
Verify 从创世记录开始逐条校验序号、前驱哈希与自身哈希。
*/
package audit
