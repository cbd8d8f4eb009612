// Package pipeline 定义了聊天事件入索引的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"chatpulse-go/internal/config"
	"chatpulse-go/internal/model"
	"chatpulse-go/pkg/es"
	"chatpulse-go/pkg/log"
	"chatpulse-go/pkg/storage"
	"chatpulse-go/pkg/tasks"
	"chatpulse-go/pkg/tika"

	"github.com/minio/minio-go/v7"
)

// maxIndexedTextLen 限制写入索引的附件文本长度（按字节截断前先按字符数判断）。
const maxIndexedTextLen = 20000

// Indexer 封装了聊天事件写入会话转写索引的所有依赖和逻辑。
type Indexer struct {
	tikaClient *tika.Client
	esCfg      config.ElasticsearchConfig
	minioCfg   config.MinIOConfig
}

// NewIndexer 创建一个新的 Indexer 实例。
func NewIndexer(tikaClient *tika.Client, esCfg config.ElasticsearchConfig, minioCfg config.MinIOConfig) *Indexer {
	return &Indexer{
		tikaClient: tikaClient,
		esCfg:      esCfg,
		minioCfg:   minioCfg,
	}
}

// Process 是事件处理的主函数，按事件类型分派。
func (p *Indexer) Process(ctx context.Context, event tasks.ChatEvent) error {
	switch event.Type {
	case tasks.EventChatMessage:
		return p.indexMessage(ctx, event)
	case tasks.EventAttachment:
		return p.indexAttachment(ctx, event)
	default:
		// 未知事件类型直接丢弃，返回 nil 让消费者提交 offset
		log.Warnf("[Indexer] 未知事件类型 '%s'，已忽略", event.Type)
		return nil
	}
}

// indexMessage 将一条聊天消息文本写入会话转写索引。
func (p *Indexer) indexMessage(ctx context.Context, event tasks.ChatEvent) error {
	if event.Content == "" {
		return nil
	}
	doc := model.EsChatMessage{
		MessageID:   "msg-" + strconv.FormatUint(uint64(event.MessageID), 10),
		SessionID:   event.SessionID,
		UserID:      event.UserID,
		MessageType: event.MessageType,
		Platform:    event.Platform,
		TextContent: event.Content,
		CreatedAt:   event.CreatedAt,
	}
	if err := es.IndexChatMessage(ctx, p.esCfg.IndexName, doc); err != nil {
		return fmt.Errorf("索引聊天消息失败: %w", err)
	}
	return nil
}

// indexAttachment 处理附件事件：从 MinIO 下载原文件，
// 经 Tika 提取文本后写入会话转写索引。
func (p *Indexer) indexAttachment(ctx context.Context, event tasks.ChatEvent) error {
	log.Infof("[Indexer] 开始处理附件, Object: %s, FileName: %s", event.ObjectName, event.FileName)

	// 1. 从 MinIO 下载附件
	object, err := storage.MinioClient.GetObject(ctx, p.minioCfg.BucketName, event.ObjectName, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("从 MinIO 下载附件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		return fmt.Errorf("读取 MinIO 对象流失败: %w", err)
	}
	if size == 0 {
		log.Warnf("[Indexer] 附件 '%s' 内容为空, 处理中止", event.FileName)
		return errors.New("附件内容为空")
	}

	// 2. 使用 Tika 提取文本
	textContent, err := p.tikaClient.ExtractText(bytes.NewReader(buf.Bytes()), event.FileName)
	if err != nil {
		return fmt.Errorf("使用 Tika 提取文本失败: %w", err)
	}
	if textContent == "" {
		// 图片等无文本附件不入索引，不算失败
		log.Infof("[Indexer] 附件 '%s' 无可提取文本，跳过索引", event.FileName)
		return nil
	}
	if utf8.RuneCountInString(textContent) > maxIndexedTextLen {
		runes := []rune(textContent)
		textContent = string(runes[:maxIndexedTextLen])
	}

	// 3. 写入转写索引
	doc := model.EsChatMessage{
		MessageID:   "att-" + event.ObjectName,
		SessionID:   event.SessionID,
		UserID:      event.UserID,
		MessageType: event.MessageType,
		Platform:    event.Platform,
		TextContent: textContent,
		FileName:    event.FileName,
		CreatedAt:   event.CreatedAt,
	}
	if err := es.IndexChatMessage(ctx, p.esCfg.IndexName, doc); err != nil {
		return fmt.Errorf("索引附件文本失败: %w", err)
	}

	log.Infof("[Indexer] 附件索引完成, Object: %s", event.ObjectName)
	return nil
}
