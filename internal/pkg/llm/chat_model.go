package llm

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"k8s.io/klog/v2"
)

// ErrEmptyResponse 提供方既没有返回响应也没有返回错误
var ErrEmptyResponse = errors.New("no response from LLM")

// LoggingChatModel 在底层 ChatModel 外记录请求与响应概要
type LoggingChatModel struct {
	chatModel model.BaseChatModel
	modelName string
}

// NewLoggingChatModel 包装任意 BaseChatModel
func NewLoggingChatModel(chatModel model.BaseChatModel, modelName string) *LoggingChatModel {
	return &LoggingChatModel{chatModel: chatModel, modelName: modelName}
}

// ModelName 配置的模型名称
func (m *LoggingChatModel) ModelName() string {
	return m.modelName
}

// Generate 同步生成响应
func (m *LoggingChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	klog.V(6).Infof("[LLMChatModel] Generate 开始: model=%s, messageCount=%d", m.modelName, len(input))
	for i, msg := range input {
		klog.V(6).Infof("[LLMChatModel]   Message[%d]: role=%s, contentLength=%d", i, msg.Role, len(msg.Content))
		klog.V(8).Infof("[LLMChatModel]   Message[%d]: content=%s", i, msg.Content)
	}

	resp, err := m.chatModel.Generate(ctx, input, opts...)
	if err != nil {
		klog.Errorf("[LLMChatModel] Generate 失败: model=%s, error=%v", m.modelName, err)
		return nil, err
	}
	if resp == nil {
		klog.Errorf("[LLMChatModel] Generate 无响应: model=%s", m.modelName)
		return nil, ErrEmptyResponse
	}

	klog.V(6).Infof("[LLMChatModel] Generate 完成: responseLength=%d", len(resp.Content))
	klog.V(8).Infof("[LLMChatModel] Generate 响应: %s", resp.Content)
	return resp, nil
}

// Stream 流式生成
func (m *LoggingChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (
	*schema.StreamReader[*schema.Message], error) {
	klog.V(6).Infof("[LLMChatModel] Stream 开始: model=%s, messageCount=%d", m.modelName, len(input))

	streamReader, err := m.chatModel.Stream(ctx, input, opts...)
	if err != nil {
		klog.Errorf("[LLMChatModel] Stream 失败: model=%s, error=%v", m.modelName, err)
		return nil, err
	}
	return streamReader, nil
}
