package agent

// 请求端默认值。
const (
	DefaultModel       = "llama"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
	DefaultTopP        = 1.0
)

// ModelOptions 描述一次补全请求的模型与采样参数。
type ModelOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// WithDefaults 用请求端默认值填充未设置的字段。
func (o ModelOptions) WithDefaults() ModelOptions {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultTemperature
	}
	if o.TopP <= 0 {
		o.TopP = DefaultTopP
	}
	return o
}

// Prompt 代表一次模型调用的完整请求。
type Prompt struct {
	Messages []Message
	Options  ModelOptions
	Tools    []ToolSpec
}

// ToolSpec 描述可供模型调用的工具定义，遵循 function 工具的通用 schema 约定。
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}
