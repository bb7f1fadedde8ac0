// Package engine содержит чистые функции движка выполнения.
//
// Включает:
//   - validate.go  — структурная валидация шаблона и засев переменных
//   - condition.go — вычисление условий (field, operator, value)
//   - deps.go      — проверка зависимостей шага и расчёт прогресса
//   - inputs.go    — слияние входов шага (переменные + контекст + конфигурация)
//
// Все функции детерминированы и не имеют побочных эффектов;
// состоянием execution владеет controller.
package engine
