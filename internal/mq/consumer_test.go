package mq

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDelivery_ExecutionPending(t *testing.T) {
	execID := uuid.New()
	tplID := uuid.New()

	// Payload приходит из JSON как map, не как typed struct
	d := &Delivery{Message: Message{
		ID:   uuid.New().String(),
		Type: MessageTypeExecutionPending,
		Payload: map[string]any{
			"execution_id": execID.String(),
			"template_id":  tplID.String(),
		},
		Timestamp: time.Now(),
	}}

	payload, err := d.ExecutionPending()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.ExecutionID != execID {
		t.Errorf("expected execution ID %s, got %s", execID, payload.ExecutionID)
	}
	if payload.TemplateID != tplID {
		t.Errorf("expected template ID %s, got %s", tplID, payload.TemplateID)
	}
}

func TestDelivery_ExecutionPending_WrongType(t *testing.T) {
	d := &Delivery{Message: Message{
		ID:   uuid.New().String(),
		Type: MessageTypeNotification,
	}}

	if _, err := d.ExecutionPending(); err == nil {
		t.Fatal("expected error for wrong message type")
	}
}

func TestParsePayload(t *testing.T) {
	msg := &Message{
		Type: MessageTypeNotification,
		Payload: map[string]any{
			"recipients": []string{"ops@example.com"},
			"payload":    map[string]any{"subject": "done"},
		},
	}

	p, err := ParsePayload[NotificationPayload](msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Recipients) != 1 || p.Recipients[0] != "ops@example.com" {
		t.Errorf("unexpected recipients: %v", p.Recipients)
	}
	if p.Payload["subject"] != "done" {
		t.Errorf("unexpected payload: %v", p.Payload)
	}
}
