package config

import "strings"

// DefaultModelName 是未配置任何模型时列出的模型。
const DefaultModelName = "gpt-3.5-turbo"

// ModelInfo 描述一个可选模型。
type ModelInfo struct {
	ID          string
	Name        string
	Description string
}

// ParseModels 解析 "id:名称:描述,id2:名称2,id3" 格式的模型列表。
// 缺少名称时使用 id，缺少描述时使用名称，空 id 的条目被丢弃。
// 列表为空时返回 defaultModel（为空则 DefaultModelName）作为唯一默认模型。
func ParseModels(spec, defaultModel string) []ModelInfo {
	var models []ModelInfo
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		id := strings.TrimSpace(parts[0])
		if id == "" {
			continue
		}
		m := ModelInfo{ID: id, Name: id, Description: id}
		if len(parts) >= 2 {
			m.Name = strings.TrimSpace(parts[1])
			m.Description = m.Name
		}
		if len(parts) >= 3 && strings.TrimSpace(parts[2]) != "" {
			m.Description = strings.TrimSpace(parts[2])
		}
		models = append(models, m)
	}

	if len(models) == 0 {
		if defaultModel == "" {
			defaultModel = DefaultModelName
		}
		return []ModelInfo{{ID: defaultModel, Name: defaultModel, Description: "默认模型"}}
	}
	return models
}
