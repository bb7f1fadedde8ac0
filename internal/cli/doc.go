// Package cli реализует инструмент командной строки Operato.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Operato API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для управления шаблонами, executions, рабочими
// заданиями и расписаниями.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Operato API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	templates, err := client.ListTemplates("")
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: operato template list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - template: list, create, show, delete, versions, publish
//   - execution: list, start, show, pause, resume, cancel, steps, workitems
//   - workitem: list, show, complete
//   - schedule: list, create, show, update, delete, enable, disable
//
// Каждая группа создаётся через фабричную функцию (NewTemplateCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
