// Copyright 2024 Atomstate Technologies Private Limited
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

package common

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewClusterError_WithCause(t *testing.T) {
	err := NewClusterError("dispatch failed", ErrUnknownRoute)

	assert.Equal(t, "dispatch failed: unknown route", err.Error())
	assert.True(t, errors.Is(err, ErrUnknownRoute))
}

func TestNewClusterError_WithoutCause(t *testing.T) {
	err := ClusterError{Message: "no route registered"}

	assert.Equal(t, "no route registered", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}

func TestClusterError_Log(t *testing.T) {
	var buf bytes.Buffer
	encoder := zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig())
	logger := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(&buf), zap.DebugLevel))

	err := ClusterError{Message: "slot capacity exceeded", Cause: ErrSlotCapacityExceeded}
	err.Log(logger)

	logOutput := buf.String()
	assert.Contains(t, logOutput, `"M":"slot capacity exceeded"`)
	assert.Contains(t, logOutput, `"error":"partition slot capacity exceeded"`)
}
