// Copyright (c) HIDO Authors.

/*
Package testutil 提供 HIDO 测试共享的工具函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertJSONEqual / AssertEventuallyTrue / AssertEventuallyEqual
  - 等待工具: WaitFor / WaitForChannel
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockRecommender、MockAuditSink、MockObserver，
    支持错误注入与调用记录
  - testutil/fixtures: 意图、选票、护栏规则与推荐结果样例

测试替身依赖 consensus 包，因此只能在外部测试包（package xxx_test）中使用。

# 使用示例

	rec := mocks.NewMockRecommender().WithPrediction(fixtures.Prediction("agent-b", 0.95))
	svc := consensus.NewService(engine)
	fixtures.RegisterVoters(svc, 3)
	d, _, err := svc.Decide(testutil.TestContext(t),
		fixtures.DecideRequest(fixtures.DeployIntent(), fixtures.MajorityApprove(), "agent-a", "agent-b"))
*/
package testutil
