// 版权所有 2026 HIDO Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 consensus 提供 HIDO 的决策核心：拜占庭容错投票、基于规则的伦理护栏，
以及融合投票、推荐信号与护栏裁决的决策引擎。

# 概述

决策核心由三个组件组成，自底向上：

  - ByzantineVoting：维护投票者注册表与当前轮次的选票，
    按法定人数（quorum）阈值计票，可选按权重计票，
    并给出 ⌊(n−1)/3⌋ 拜占庭容错报告。
  - EthicalGuardrail：持有有序规则集，每条规则是若干 Condition 的合取，
    按最高严重度选出唯一的 RequiredAction，同时维护违规日志与分类统计。
  - DecisionEngine：对一次意图执行 投票 → 推荐 → 护栏 → 合成 → 解释 → 计量，
    输出 Decision 与可审计的 DecisionExplanation。

ByzantineVoting、EthicalGuardrail 与 DecisionEngine 均为单写者结构，
内部不加锁。并发调用方应通过 Service 访问，Service 以互斥锁串行化
所有读写，并在锁外完成审计、指标、追踪与实时推送等副作用。

# 规则顺序

当多条规则同时触发且严重度相同时，先注册的规则决定 RequiredAction。
规则注册顺序是契约的一部分，Rules() 按评估顺序返回。

# 失败语义

  - CastVote 对未注册投票者返回 VOTER_NOT_REGISTERED，
    对未开始的轮次返回 NO_ACTIVE_PROPOSAL，失败调用不改变状态。
  - 护栏评估永不失败；缺失或类型不符的字段只会让对应条件为 false。
  - 否决、未达成共识、低置信度都是合法的决策结果，而不是错误。
*/
package consensus
