// Package controller управляет выполнением executions.
//
// Controller отвечает за:
//   - Получение новых executions из очереди RabbitMQ
//   - Продвижение execution по шагам вдоль открытых connections
//   - Fan-out/fan-in для параллельных веток
//   - Политику retry/escalation для упавших шагов
//   - Lifecycle-операции: start, pause, resume, cancel
//   - Эмиссию упорядоченного потока событий жизненного цикла
//
// Controller — это "мозг" системы, который координирует выполнение.
package controller
