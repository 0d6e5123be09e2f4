package llm

import "time"

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// TongyiRequest 通义千问请求结构
type TongyiRequest struct {
	Model      string              `json:"model"`
	Input      *TongyiRequestInput `json:"input"`
	Parameters *TongyiParameters   `json:"parameters,omitempty"`
}

// TongyiRequestInput 请求输入内容
type TongyiRequestInput struct {
	Messages []Message `json:"messages"`
}

// TongyiParameters 请求参数
type TongyiParameters struct {
	Temperature  *float32 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	ResultFormat string   `json:"result_format,omitempty"` // message或text
}

// TongyiResponse 通义千问响应结构
type TongyiResponse struct {
	RequestID string       `json:"request_id"`
	Code      string       `json:"code"`    // 错误码(如果有)
	Message   string       `json:"message"` // 错误消息(如果有)
	Output    TongyiOutput `json:"output"`
	Usage     TongyiUsage  `json:"usage"`
}

// TongyiOutput 输出结构
type TongyiOutput struct {
	Text    *string        `json:"text"`    // result_format为text时
	Choices []TongyiChoice `json:"choices"` // result_format为message时
}

// TongyiChoice 输出选择
type TongyiChoice struct {
	FinishReason string  `json:"finish_reason"`
	Message      Message `json:"message"`
}

// TongyiUsage 资源使用情况
type TongyiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response 统一的响应结构
type Response struct {
	Text       string    // 生成的文本
	TokenCount int       // 使用的token数
	ModelName  string    // 使用的模型名称
	FinishTime time.Time // 完成时间
}

// 常用模型名称
const (
	ModelQwenTurbo  = "qwen-turbo"
	ModelQwenPlus   = "qwen-plus"
	ModelGemma2     = "gemma2-9b-it" // Groq 上的摘要模型
	ModelLlama3     = "llama-3.1-8b-instant"
	ModelGPT4oMini  = "gpt-4o-mini"
	ModelGeminiFast = "gemini-1.5-flash"
)
