// Package collab реализует коллабораторов для поведений шагов.
//
// Поведения (notification, automation, task) описывают ЧТО сделать;
// коллабораторы знают КАК: уведомления уходят в очередь RabbitMQ,
// генерация документов и синхронизация данных — по HTTP во внешние
// сервисы. В конфигурации без внешних сервисов используются
// log-заглушки, чтобы движок оставался работоспособным.
package collab
