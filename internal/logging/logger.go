package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger представляет систему логирования
type Logger struct {
	consoleLogger *log.Logger
	fileLogger    *log.Logger
	file          *os.File
}

// Глобальный экземпляр логгера
var globalLogger *Logger

// Init инициализирует систему логирования.
// Файл логов получает все уровни, консоль — только INFO и выше.
func Init() error {
	// Создаем директорию для логов
	if err := os.MkdirAll("logs", 0755); err != nil {
		return fmt.Errorf("ошибка создания директории logs: %w", err)
	}

	// Создаем файл для логов с временной меткой
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join("logs", fmt.Sprintf("persist_%s.log", timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("ошибка создания файла логов: %w", err)
	}

	globalLogger = &Logger{
		consoleLogger: log.New(os.Stdout, "", log.LstdFlags),
		fileLogger:    log.New(file, "", log.LstdFlags),
		file:          file,
	}

	return nil
}

// Close закрывает систему логирования
func Close() {
	if globalLogger != nil && globalLogger.file != nil {
		globalLogger.file.Close()
	}
}

// Trace логирует сообщение уровня TRACE
func Trace(format string, args ...interface{}) {
	logMessage(TRACE, format, args...)
}

// Debug логирует сообщение уровня DEBUG
func Debug(format string, args ...interface{}) {
	logMessage(DEBUG, format, args...)
}

// Info логирует сообщение уровня INFO
func Info(format string, args ...interface{}) {
	logMessage(INFO, format, args...)
}

// Warn логирует сообщение уровня WARN
func Warn(format string, args ...interface{}) {
	logMessage(WARN, format, args...)
}

// Error логирует сообщение уровня ERROR
func Error(format string, args ...interface{}) {
	logMessage(ERROR, format, args...)
}

// logMessage внутренняя функция для логирования
func logMessage(level LogLevel, format string, args ...interface{}) {
	if globalLogger == nil {
		return
	}

	message := fmt.Sprintf("[%s] %s", level.String(), fmt.Sprintf(format, args...))

	// Логируем в файл все уровни
	globalLogger.fileLogger.Println(message)

	// Логируем в консоль только INFO и выше
	if level >= INFO {
		globalLogger.consoleLogger.Println(message)
	}
}

// LogStoreError логирует ошибку операции хранилища с контекстом команды
func LogStoreError(op string, p, q int, err error) {
	Error("Store %s failed for chunk(%d,%d): %v", op, p, q, err)
}

// LogChunkLoad логирует загрузку данных чанка
func LogChunkLoad(kind string, p, q int, rows int) {
	Debug("Loaded %d %s rows for chunk(%d,%d)", rows, kind, p, q)
}
