package service

import (
	"errors"
	"fmt"
)

// ValidationError 输入字段校验失败
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidPayloadError 扫描文本中没有可识别的收获卡数据
type InvalidPayloadError struct {
	Reason string
	Err    error
}

func (e *InvalidPayloadError) Error() string {
	if e.Reason == "" {
		return "no recognizable harvest card data"
	}
	return "no recognizable harvest card data: " + e.Reason
}

func (e *InvalidPayloadError) Unwrap() error {
	return e.Err
}

// NotFoundError 没有匹配的有效收获卡
type NotFoundError struct {
	CardID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("harvest card %s not present in local records", e.CardID)
}

// Advice 返回给用户的提示信息
func (e *NotFoundError) Advice() string {
	return "The card may belong to another farmer or device, or it may have been deactivated."
}

// PersistenceError 存储操作失败
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsInvalidPayload 判断是否为载荷错误
func IsInvalidPayload(err error) bool {
	var target *InvalidPayloadError
	return errors.As(err, &target)
}

// IsNotFound 判断是否为不存在错误
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsPersistence 判断是否为存储错误
func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}
