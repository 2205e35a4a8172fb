// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// 操作标签取值。
	OpEncodeText       = "encode_text"
	OpEncodeBytes      = "encode_bytes"
	OpDecode           = "decode"
	OpDecodeBytes      = "decode_bytes"
	OpDecodeCompressed = "decode_compressed"
	OpCompress         = "compress"
	OpDecompress       = "decompress"
)

var (
	SerdeMetricsRegisterOnce sync.Once

	SerdeOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serdeNamespace,
		Name:      "operations_total",
		Help:      "编解码与压缩操作次数，按操作与结果区分",
	}, []string{opLabelName, statusLabelName})

	SerdeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serdeNamespace,
		Name:      "errors_total",
		Help:      "失败操作次数，按操作与错误类别区分",
	}, []string{opLabelName, kindLabelName})

	SerdePayloadBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: serdeNamespace,
		Name:      "payload_bytes",
		Help:      "各操作输出（编码/压缩）或输入（解码/解压）的字节数",
		Buckets:   sizeBuckets,
	}, []string{opLabelName})

	SerdeCompressionRatio = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: serdeNamespace,
		Name:      "compression_ratio",
		Help:      "压缩后与压缩前的字节数之比",
		Buckets:   ratioBuckets,
	})
)

// RegisterSerdeMetrics 将编解码相关的指标注册到 Prometheus Registerer 中，只生效一次。
func RegisterSerdeMetrics(registry prometheus.Registerer) {
	SerdeMetricsRegisterOnce.Do(func() {
		registry.MustRegister(SerdeOperations)
		registry.MustRegister(SerdeErrors)
		registry.MustRegister(SerdePayloadBytes)
		registry.MustRegister(SerdeCompressionRatio)
	})
}

// ObserveOperation 记录一次操作的结果；err 非空时 kind 为错误类别。
func ObserveOperation(op string, size int, kind string) {
	if kind != "" {
		SerdeOperations.WithLabelValues(op, FailLabel).Inc()
		SerdeErrors.WithLabelValues(op, kind).Inc()
		return
	}
	SerdeOperations.WithLabelValues(op, SuccessLabel).Inc()
	if size >= 0 {
		SerdePayloadBytes.WithLabelValues(op).Observe(float64(size))
	}
}

// ObserveCompression 记录一次压缩的压缩率，原始长度为 0 时忽略。
func ObserveCompression(plain, packed int) {
	if plain <= 0 {
		return
	}
	SerdeCompressionRatio.Observe(float64(packed) / float64(plain))
}
