// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (репозитории, publisher, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request-структуры)
//   - template_handler.go  — обработчики для /templates
//   - execution_handler.go — обработчики для /executions и lifecycle-команд
//   - workitem_handler.go  — обработчики для /workitems
//   - schedule_handler.go  — обработчики для /schedules
//
// API предоставляет REST endpoints для управления шаблонами, executions,
// рабочими заданиями и расписаниями. Сам движок живёт в отдельном
// процессе: запуск и возобновление execution публикуются в MQ
// (с polling-фолбэком на стороне движка), а pause/cancel записываются
// в БД и подхватываются движком на границе шага.
package api
