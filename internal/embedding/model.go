package embedding

// DashScopeRequest DashScope原生接口请求结构
type DashScopeRequest struct {
	Model      string                `json:"model"`
	Input      DashScopeRequestInput `json:"input"`
	Parameters *DashScopeParameters  `json:"parameters,omitempty"`
}

// DashScopeRequestInput 需要嵌入的文本列表
type DashScopeRequestInput struct {
	Texts []string `json:"texts"`
}

// DashScopeParameters v3模型的可选参数
type DashScopeParameters struct {
	Dimension  int    `json:"dimension,omitempty"`
	OutputType string `json:"output_type,omitempty"`
}

// DashScopeResponse DashScope原生接口响应结构
type DashScopeResponse struct {
	StatusCode int    `json:"status_code,omitempty"`
	RequestID  string `json:"request_id"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Output     struct {
		Embeddings []struct {
			Embedding []float32 `json:"embedding"`
			TextIndex int       `json:"text_index"`
		} `json:"embeddings"`
	} `json:"output"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// GeminiPart 内容片段
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiContent 待嵌入的内容
type GeminiContent struct {
	Parts []GeminiPart `json:"parts"`
}

// GeminiEmbedRequest 单条嵌入请求
type GeminiEmbedRequest struct {
	Model    string        `json:"model"`
	Content  GeminiContent `json:"content"`
	TaskType string        `json:"taskType,omitempty"`
}

// GeminiBatchRequest batchEmbedContents请求结构
type GeminiBatchRequest struct {
	Requests []GeminiEmbedRequest `json:"requests"`
}

// GeminiBatchResponse batchEmbedContents响应结构
type GeminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// GeminiErrorResponse 错误响应
type GeminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
