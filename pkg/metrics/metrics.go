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
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// serdeNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	serdeNamespace = "serde"

	// 以下为当前使用的通用标签名。
	opLabelName     = "op"
	statusLabelName = "status"
	kindLabelName   = "kind"

	SuccessLabel = "success"
	FailLabel    = "fail"
)

var (
	// sizeBuckets 为数据大小的桶划分，单位为字节。
	// 实际桶分布为：
	// [64 256 1024 4096 16384 65536 262144 1.048576e+06 4.194304e+06 1.6777216e+07]
	sizeBuckets = prometheus.ExponentialBuckets(64, 4, 10)

	// ratioBuckets 为压缩率（压缩后/压缩前）的桶划分。
	ratioBuckets = []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1, 1.5, 2}

	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，并将 r 记为全局 Registerer。
func Register(r prometheus.Registerer) {
	RegisterSerdeMetrics(r)
	metricRegisterer = r
}
