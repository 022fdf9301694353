/*
Package policy 以数据文件定义护栏规则。

策略文档支持 YAML 与 JSON，按文件扩展名选择解析器：

	version: "2026-03"
	include_defaults: true
	rules:
	  - id: finance-1
	    category: legality
	    action: require_approval
	    severity: 8
	    description: Large transfers need sign-off
	    conditions:
	      - {field: action, operator: contains, value: transfer}
	      - {field: impact, operator: gt, value: 0.7}

Watcher 轮询策略文件，变更经防抖后重新加载、校验并整体替换服务中的规则。
文档无效时保留原有规则并记录错误。
*/
package policy
