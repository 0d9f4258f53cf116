package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrValidation используется для ошибок валидации входных данных,
	// включая неизвестные или просроченные сессии линковки.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized используется, когда операция требует аутентифицированного вызывающего.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict используется, когда внешняя идентичность уже привязана к другому аккаунту.
	ErrConflict = errors.New("resource state conflict")

	// ErrNotEnabled используется, когда функция выключена конфигурацией
	// или создание аккаунта не разрешено.
	ErrNotEnabled = errors.New("feature not enabled")

	// ErrUpstreamFailure используется, когда внешний провайдер или identity directory
	// недоступны либо вернули ошибку. Отделена от ошибок вызывающего, чтобы операторы
	// могли алертить на сбои провайдера отдельно от плохих запросов.
	ErrUpstreamFailure = errors.New("upstream failure")

	// ErrInternalInconsistency используется, когда откат после частично выполненного
	// создания аккаунта сам завершился ошибкой: удаленное и локальное состояние разошлись.
	ErrInternalInconsistency = errors.New("internal state inconsistency")
)
