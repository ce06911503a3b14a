package exchange

import "fmt"

// SendOutcome 是 SendMessage 的结果，取值只可能是
// Answered、Declined、StatusFailure、Unreachable 之一。
type SendOutcome interface {
	sendOutcome()
}

// Answered 表示端点给出了回答。SessionID 为空表示沿用当前 session。
type Answered struct {
	Text      string
	SessionID string
}

// Declined 表示传输成功，但端点返回了 {"error": ...}。
type Declined struct {
	Message string
}

// StatusFailure 表示端点返回了非 2xx 状态，或 2xx 但响应体既无 response 也无 error。
type StatusFailure struct {
	StatusCode int
	Body       string
}

// Unreachable 表示网络层失败：连接错误、超时、响应体无法解析等。
type Unreachable struct {
	Err error
}

func (Answered) sendOutcome()      {}
func (Declined) sendOutcome()      {}
func (StatusFailure) sendOutcome() {}
func (Unreachable) sendOutcome()   {}

func (f StatusFailure) Error() string {
	return fmt.Sprintf("answering endpoint returned status %d: %s", f.StatusCode, f.Body)
}

func (u Unreachable) Error() string {
	return fmt.Sprintf("answering endpoint unreachable: %v", u.Err)
}

func (u Unreachable) Unwrap() error { return u.Err }

// ResetOutcome 是 ResetSession 的结果：Reset 或 ResetFailed。
type ResetOutcome interface {
	resetOutcome()
}

// Reset 表示远端已清空会话上下文。SessionID 为空表示只在客户端轮换。
type Reset struct {
	SessionID string
}

// ResetFailed 汇总所有失败情形。
type ResetFailed struct {
	Err error
}

func (Reset) resetOutcome()       {}
func (ResetFailed) resetOutcome() {}

func (f ResetFailed) Error() string { return fmt.Sprintf("reset session failed: %v", f.Err) }

func (f ResetFailed) Unwrap() error { return f.Err }
