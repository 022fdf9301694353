/*
Package recommender 定义决策引擎可选的推荐信号协作者。

Recommender 接收节点嵌入、邻接边、查询节点、候选列表与时间事件，
返回一个带 [0,1] 置信度的首选候选及备选列表。决策核心把它当作黑盒：
置信度不高于 0.8 时引擎回退到第一个候选。

内置实现：

  - SimilarityRecommender：基于嵌入的确定性打分器。一次邻居均值聚合，
    余弦相似度，时间衰减加权的事件加成，带温度的 softmax。
  - CachedRecommender：以请求摘要为键、用 Redis 缓存预测结果的装饰器。
*/
package recommender
