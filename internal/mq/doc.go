// Package mq реализует обмен сообщениями через RabbitMQ.
//
// Включает:
//   - connection.go — соединение с автоматическим reconnect
//   - topology.go   — обменники, очереди и привязки
//   - publisher.go  — публикация executions, событий и уведомлений
//   - consumer.go   — потребление с ручным ack/nack
//
// Очереди дополняют polling-fallback движка: при недоступном
// RabbitMQ система продолжает работать через опрос БД.
package mq
