// 版权所有 2026 HIDO Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，供推荐结果缓存等组件使用。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端，提供 Get/Set/Delete/Ping
    与 GetJSON/SetJSON 便捷序列化方法，所有键自动加 KeyPrefix。
  - Config：地址、密码、键前缀、默认 TTL、连接池与健康检查间隔。
  - Stats：本进程的命中/未命中计数、命中率、键数量与连接池状态。

# 错误语义

ErrCacheMiss 表示未命中，ErrClosed 表示管理器已关闭。
*/
package cache
