package pipeline

import (
	"context"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/pkg/log"
	"smarthomes-semantic/pkg/tasks"
)

// Processor 将 Kafka 中的入库任务交给 Runner 执行。
type Processor struct {
	runner *Runner
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(runner *Runner) *Processor {
	return &Processor{runner: runner}
}

// Process 执行一次入库任务。返回 error 时消费者会重试。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) error {
	kind, err := model.ParseKind(task.Kind)
	if err != nil {
		// 重试也不会成功，直接丢弃
		log.Errorf("[Processor] 任务 %s 的类型无效, 已丢弃: %v", task.ID, err)
		return nil
	}

	log.Infof("[Processor] 开始处理入库任务, ID: %s, Kind: %s, Recreate: %t", task.ID, kind, task.Recreate)
	report, err := p.runner.Ingest(ctx, kind, IngestOptions{Recreate: task.Recreate})
	if err != nil {
		phase, _ := PhaseOf(err)
		log.Errorf("[Processor] 入库任务 %s 在 '%s' 阶段失败: %v", task.ID, phase, err)
		return err
	}

	log.Infof("[Processor] 入库任务 %s 完成, 运行 %s: 写入 %d, 记录失败 %d, 文档拒绝 %d, 耗时 %s",
		task.ID, report.RunID, report.Write.DocumentsWritten, len(report.Write.RecordErrors),
		len(report.Write.DocumentErrors), report.Duration)
	return nil
}
