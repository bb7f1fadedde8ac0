// Package steps реализует поведения типов шагов.
//
// Каждый тип шага (start, task, decision, parallel, merge, end, delay,
// notification, automation) — отдельный Behavior, зарегистрированный
// в Registry. Контроллер получает behavior по типу и вызывает Execute;
// внешние эффекты (задания, уведомления, документы) идут через узкие
// интерфейсы коллабораторов из step.go.
package steps
