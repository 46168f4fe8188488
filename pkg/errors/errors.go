package errors

import (
	stderrors "errors"
	"fmt"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// Kind 错误分类，决定 HTTP 状态码
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindDependencyUnavailable
	KindPersistence
	KindRateLimited
)

// 通用错误。
var (
	InvalidRequest  = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	Unauthorized    = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	Forbidden       = Definition{Code: "FORBIDDEN", Message: "Forbidden"}
	InvalidUserID   = Definition{Code: "INVALID_USER_ID", Message: "Invalid user ID format"}
	UserNotFound    = Definition{Code: "USER_NOT_FOUND", Message: "User not found"}
	FamilyNotFound  = Definition{Code: "FAMILY_NOT_FOUND", Message: "User does not belong to a family"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests, please try again later"}
)

// 打卡模块错误。
var (
	InvalidPhoto      = Definition{Code: "INVALID_PHOTO", Message: "Photo cannot be decoded"}
	TaskNotFound      = Definition{Code: "TASK_NOT_FOUND", Message: "Check-in task not found"}
	AlreadyCheckedIn  = Definition{Code: "ALREADY_CHECKED_IN", Message: "Already checked in today"}
	InvalidTaskConfig = Definition{Code: "INVALID_TASK_CONFIG", Message: "Invalid task configuration"}
	PersistenceFailed = Definition{Code: "PERSISTENCE_FAILED", Message: "Failed to persist records"}
)

// 识别模块错误。
var (
	ModelNotLoaded = Definition{Code: "MODEL_NOT_LOADED", Message: "Recognition model not loaded"}
	NoFaceEnrolled = Definition{Code: "NO_FACE_ENROLLED", Message: "No face could be enrolled from the photos"}
)

// 通知模块错误。
var (
	NotificationNotFound    = Definition{Code: "NOTIFICATION_NOT_FOUND", Message: "Notification not found"}
	NotificationNotReadable = Definition{Code: "NOTIFICATION_NOT_READABLE", Message: "Notification is not in a readable state"}
)

var kinds = map[string]Kind{
	InvalidRequest.Code:          KindValidation,
	InvalidUserID.Code:           KindValidation,
	InvalidPhoto.Code:            KindValidation,
	InvalidTaskConfig.Code:       KindValidation,
	NoFaceEnrolled.Code:          KindValidation,
	Unauthorized.Code:            KindUnauthorized,
	Forbidden.Code:               KindForbidden,
	UserNotFound.Code:            KindNotFound,
	FamilyNotFound.Code:          KindNotFound,
	TaskNotFound.Code:            KindNotFound,
	NotificationNotFound.Code:    KindNotFound,
	AlreadyCheckedIn.Code:        KindConflict,
	NotificationNotReadable.Code: KindConflict,
	ModelNotLoaded.Code:          KindDependencyUnavailable,
	PersistenceFailed.Code:       KindPersistence,
	TooManyRequests.Code:         KindRateLimited,
}

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	InvalidRequest.Code:          InvalidRequest,
	Unauthorized.Code:            Unauthorized,
	Forbidden.Code:               Forbidden,
	InvalidUserID.Code:           InvalidUserID,
	UserNotFound.Code:            UserNotFound,
	FamilyNotFound.Code:          FamilyNotFound,
	InvalidPhoto.Code:            InvalidPhoto,
	TaskNotFound.Code:            TaskNotFound,
	AlreadyCheckedIn.Code:        AlreadyCheckedIn,
	InvalidTaskConfig.Code:       InvalidTaskConfig,
	PersistenceFailed.Code:       PersistenceFailed,
	ModelNotLoaded.Code:          ModelNotLoaded,
	NoFaceEnrolled.Code:          NoFaceEnrolled,
	NotificationNotFound.Code:    NotificationNotFound,
	NotificationNotReadable.Code: NotificationNotReadable,
	TooManyRequests.Code:         TooManyRequests,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// KindOf 返回错误链中第一个 Definition 的分类
func KindOf(err error) Kind {
	var def Definition
	if stderrors.As(err, &def) {
		if k, ok := kinds[def.Code]; ok {
			return k
		}
	}
	return KindInternal
}

// DetailedError 携带额外说明的业务错误，errors.Is 仍可匹配原 Definition
type DetailedError struct {
	Definition
	Detail string
}

func (e *DetailedError) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

func (e *DetailedError) Unwrap() error {
	return e.Definition
}

// WithDetail 为 Definition 附加说明
func WithDetail(def Definition, format string, args ...interface{}) error {
	return &DetailedError{Definition: def, Detail: fmt.Sprintf(format, args...)}
}

// SkipMessageError 表示消息无需处理（重复消息或状态已变化），消费者直接 ack
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return e.Reason
}

// PoisonMessageError 消息体无法解析，重试也不会成功，消费者 nack 且不重新入队
type PoisonMessageError struct {
	Err error
}

func (e *PoisonMessageError) Error() string {
	return "malformed message: " + e.Err.Error()
}

func (e *PoisonMessageError) Unwrap() error {
	return e.Err
}

// 内部哨兵错误
var (
	ErrTokenGeneratorNotInitialized = stderrors.New("token generator not initialized")
	ErrUnexpectedSigningMethod      = stderrors.New("unexpected signing method")
	ErrInvalidToken                 = stderrors.New("invalid token")
	ErrInvalidTokenClaims           = stderrors.New("invalid token claims")
	ErrInvalidTokenType             = stderrors.New("invalid token type")
	ErrUserIDNotFound               = stderrors.New("user id not found in token")
	ErrDatabaseConnectionNil        = stderrors.New("database connection is nil")
	ErrSignNameRequired             = stderrors.New("sms sign name is required")
	ErrTemplateCodeRequired         = stderrors.New("sms template code is required")
)
