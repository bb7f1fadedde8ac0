package steps

import (
	"context"
	"fmt"

	"github.com/savrin/operato/internal/domain"
)

// Типы автоматизаций.
const (
	AutomationEmail    = "email_notification"
	AutomationDocument = "document_generation"
	AutomationDataSync = "data_sync"
)

// Ключи конфигурации automation.
const (
	configAutomationType = "automationType"
	configTemplateRef    = "documentTemplate"
	configSyncSpec       = "syncSpec"
)

// AutomationBehavior — шаг автоматизации.
//
// Диспетчеризует по automationType из конфигурации на одного из
// коллабораторов. Неизвестный тип — ошибка, шаг падает и проходит
// обычную политику retry/escalation.
//
// Конфигурация:
//
//	{
//	    "automationType": "document_generation",
//	    "documentTemplate": "engagement-letter-v2"
//	}
type AutomationBehavior struct {
	notifier  Notifier
	documents DocumentGenerator
	dataSync  DataSyncer
}

// NewAutomationBehavior создаёт новый AutomationBehavior.
func NewAutomationBehavior(n Notifier, d DocumentGenerator, s DataSyncer) *AutomationBehavior {
	return &AutomationBehavior{notifier: n, documents: d, dataSync: s}
}

// Type возвращает тип шага.
func (b *AutomationBehavior) Type() domain.StepType { return domain.StepTypeAutomation }

// Execute выполняет автоматизацию.
func (b *AutomationBehavior) Execute(ctx context.Context, req *Request) (*Response, error) {
	automationType := GetConfigString(req.Step.Configuration, configAutomationType)

	switch automationType {
	case AutomationEmail:
		return b.sendEmail(ctx, req)
	case AutomationDocument:
		return b.generateDocument(ctx, req)
	case AutomationDataSync:
		return b.syncData(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAutomationType, automationType)
	}
}

func (b *AutomationBehavior) sendEmail(ctx context.Context, req *Request) (*Response, error) {
	if b.notifier == nil {
		return nil, fmt.Errorf("%w: automation: notifier is not configured", ErrInvalidConfig)
	}

	recipients := GetConfigStrings(req.Step.Configuration, configRecipients)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: automation: no recipients", ErrInvalidConfig)
	}

	delivered, err := b.notifier.Send(ctx, recipients, map[string]any{
		"execution_id": req.Execution.ID.String(),
		"step_id":      req.Step.ID,
		"message":      GetConfigString(req.Step.Configuration, configMessage),
		"inputs":       req.Inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("email automation: %w", err)
	}

	return &Response{Outputs: map[string]any{"delivered": delivered}}, nil
}

func (b *AutomationBehavior) generateDocument(ctx context.Context, req *Request) (*Response, error) {
	if b.documents == nil {
		return nil, fmt.Errorf("%w: automation: document generator is not configured", ErrInvalidConfig)
	}

	templateRef := GetConfigString(req.Step.Configuration, configTemplateRef)
	if templateRef == "" {
		return nil, fmt.Errorf("%w: automation: 'documentTemplate' required", ErrInvalidConfig)
	}

	documentID, err := b.documents.Generate(ctx, templateRef, req.Inputs)
	if err != nil {
		return nil, fmt.Errorf("document automation: %w", err)
	}

	return &Response{Outputs: map[string]any{"document_id": documentID}}, nil
}

func (b *AutomationBehavior) syncData(ctx context.Context, req *Request) (*Response, error) {
	if b.dataSync == nil {
		return nil, fmt.Errorf("%w: automation: data syncer is not configured", ErrInvalidConfig)
	}

	spec := GetConfigMap(req.Step.Configuration, configSyncSpec)
	if spec == nil {
		spec = req.Inputs
	}

	records, err := b.dataSync.Sync(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("data sync automation: %w", err)
	}

	return &Response{Outputs: map[string]any{"records_synced": records}}, nil
}
