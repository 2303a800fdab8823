package embedding

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind 区分可重试与不可重试的失败。
type ErrorKind int

const (
	// Transient 表示网络错误、限流（429）或 5xx，可重试。
	Transient ErrorKind = iota
	// Permanent 表示重试也不会成功的失败，例如鉴权失败、请求格式错误、响应格式错误。
	Permanent
)

func (k ErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

var (
	// ErrEmptyText 表示待向量化的文本为空。
	ErrEmptyText = errors.New("embedding input text is empty")
	// ErrEmptyEmbedding 表示服务返回了空的向量数据。
	ErrEmptyEmbedding = errors.New("received empty embedding from api")
	// ErrRetriesExhausted 表示可重试错误在达到最大尝试次数后仍未成功。
	ErrRetriesExhausted = errors.New("embedding retries exhausted")
)

// Error 是 embedding 调用失败时返回的错误类型。
type Error struct {
	Kind       ErrorKind
	StatusCode int // HTTP 状态码，网络错误时为 0
	Attempts   int // 实际发起的调用次数，由重试层填写
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("embedding %s error", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Transient 报告该错误是否可重试。
func (e *Error) Transient() bool { return e.Kind == Transient }

func transientError(status int, err error) *Error {
	return &Error{Kind: Transient, StatusCode: status, Err: err}
}

func permanentError(status int, err error) *Error {
	return &Error{Kind: Permanent, StatusCode: status, Err: err}
}

// classifyStatus 根据 HTTP 状态码判断失败类型。
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return Transient
	default:
		return Permanent
	}
}

// IsTransient 报告 err 是否为可重试的 embedding 错误。
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == Transient
}

// IsAuthFailure 报告 err 是否为鉴权失败。鉴权失败影响整个运行，而不是单条记录。
func IsAuthFailure(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Attempts 返回 err 中记录的调用次数，无法获取时返回 0。
func Attempts(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Attempts
	}
	return 0
}
