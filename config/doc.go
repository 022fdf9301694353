// Package config 提供 HIDO 决策服务的配置管理。
//
// 配置按 默认值 → YAML 文件 → HIDO_* 环境变量 的顺序合并，
// 加载完成后统一校验。Sanitized 返回隐藏凭据后的视图，
// 供管理接口展示。
package config
