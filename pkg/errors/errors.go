// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors 提供统一错误辅助与错误分类，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")
)

// 错误分类：采集路径（Resolution/Encoding）在本地降级为哨兵值，
// 插桩路径（Instrumentation/Configuration）返回给调用方
var (
	// ErrResolution 调用点无法识别
	ErrResolution = errors.New("call site resolution failed")
	// ErrEncoding 对象无法编码为表达式
	ErrEncoding = errors.New("instance encoding failed")
	// ErrInstrumentation 单个调用点安装/恢复失败
	ErrInstrumentation = errors.New("instrumentation failed")
	// ErrConfiguration 缺少必要标识或指令引用无法解析
	ErrConfiguration = errors.New("configuration error")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Configf 构造一个可被 errors.Is(err, ErrConfiguration) 识别的错误
func Configf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Instrumentationf 构造一个可被 errors.Is(err, ErrInstrumentation) 识别的错误
func Instrumentationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInstrumentation, fmt.Sprintf(format, args...))
}

// Is 透传标准库 errors.Is，便于调用方只导入本包
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 透传标准库 errors.As
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join 透传标准库 errors.Join
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// New 透传标准库 errors.New
func New(text string) error {
	return errors.New(text)
}
