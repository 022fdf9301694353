// 版权所有 2026 HIDO Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 HIDO API 与指标端口的 HTTP 服务器生命周期。

# 概述

Manager 封装 net/http.Server：Start 非阻塞启动，Run 阻塞到上下文
结束（通常来自 signal.NotifyContext）或服务异常退出，然后在
ShutdownTimeout 内排空请求。OnShutdown 注册的钩子在服务器停止后
按注册逆序执行，用于停止策略监听、关闭审计存储与缓存连接。
*/
package server
