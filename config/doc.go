// 版权所有 2024 DiagramFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package config 提供 DiagramFlow 的配置加载。

配置按 默认值 → YAML 文件 → DIAGRAMFLOW_ 前缀环境变量 的顺序合并，
随后读取旧版部署使用的环境变量（AI_API_URL、AI_API_KEY、AI_MODEL_NAME、
AI_MODELS、ACCESS_PASSWORD、DAILY_USAGE_LIMIT、MAX_CHARS），
仅当对应的前缀变量未设置时生效。

ParseModels 解析可选模型列表，Config.Validate 聚合报告所有配置问题。
*/
package config
