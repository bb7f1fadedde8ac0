package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// ErrServiceRequest — ошибка обращения к внешнему сервису.
var ErrServiceRequest = errors.New("service request failed")

// httpClient — общая обвязка HTTP-коллабораторов: JSON-запрос,
// таймаут, разбор ответа, HTTP >= 400 как ошибка.
type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string, timeout time.Duration) httpClient {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// postJSON выполняет POST с JSON-телом и декодирует JSON-ответ в out.
func (c httpClient) postJSON(ctx context.Context, path string, body any, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: marshal body: %v", ErrServiceRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrServiceRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrServiceRequest, err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d: %s", ErrServiceRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrServiceRequest, err)
		}
	}
	return nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// DocumentClient — HTTP-клиент сервиса генерации документов.
// Реализует steps.DocumentGenerator.
type DocumentClient struct {
	http httpClient
}

// NewDocumentClient создаёт клиент сервиса документов.
func NewDocumentClient(baseURL string, timeout time.Duration) *DocumentClient {
	return &DocumentClient{http: newHTTPClient(baseURL, timeout)}
}

// Generate запрашивает генерацию документа по шаблону.
// Возвращает идентификатор созданного документа.
func (c *DocumentClient) Generate(ctx context.Context, templateRef string, data map[string]any) (string, error) {
	reqBody := map[string]any{
		"template_ref": templateRef,
		"data":         data,
	}
	var respBody struct {
		DocumentID string `json:"document_id"`
	}

	if err := c.http.postJSON(ctx, "/v1/documents", reqBody, &respBody); err != nil {
		return "", err
	}
	if respBody.DocumentID == "" {
		return "", fmt.Errorf("%w: empty document_id in response", ErrServiceRequest)
	}
	return respBody.DocumentID, nil
}

// DataSyncClient — HTTP-клиент сервиса синхронизации данных.
// Реализует steps.DataSyncer.
type DataSyncClient struct {
	http httpClient
}

// NewDataSyncClient создаёт клиент сервиса синхронизации.
func NewDataSyncClient(baseURL string, timeout time.Duration) *DataSyncClient {
	return &DataSyncClient{http: newHTTPClient(baseURL, timeout)}
}

// Sync запускает синхронизацию по спецификации.
// Возвращает количество синхронизированных записей.
func (c *DataSyncClient) Sync(ctx context.Context, spec map[string]any) (int, error) {
	var respBody struct {
		RecordsSynced int `json:"records_synced"`
	}

	if err := c.http.postJSON(ctx, "/v1/sync", spec, &respBody); err != nil {
		return 0, err
	}
	return respBody.RecordsSynced, nil
}
