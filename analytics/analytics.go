package analytics

import (
	"sync"
)

type DataCollectorConfig struct {
	FileName      string
	CollectorType DataCollectorType
}

type DataCollectorType string

const NOOP_DATA_COLLECTOR DataCollectorType = ""
const LOG_FILE_DATA_COLLECTOR DataCollectorType = "LOG_FILE_DATA_COLLECTOR"

// WorkflowDataCollector receives one record per finished node attempt.
type WorkflowDataCollector interface {
	RecordNodeSuccess(executionId string, nodeId string, nodeType string, iteration int, data map[string]any)
	RecordNodeFailure(executionId string, nodeId string, nodeType string, iteration int, reason string)
}

var (
	mu                sync.RWMutex
	workflowCollector WorkflowDataCollector = noopCollector{}
)

func InitDataCollector(config DataCollectorConfig) error {
	switch config.CollectorType {
	case LOG_FILE_DATA_COLLECTOR:
		c, err := NewLogFileDataCollector(config.FileName)
		if err != nil {
			return err
		}
		SetCollector(c)
	default:
		SetCollector(noopCollector{})
	}
	return nil
}

func SetCollector(c WorkflowDataCollector) {
	mu.Lock()
	defer mu.Unlock()
	workflowCollector = c
}

func collector() WorkflowDataCollector {
	mu.RLock()
	defer mu.RUnlock()
	return workflowCollector
}

func RecordNodeSuccess(executionId string, nodeId string, nodeType string, iteration int, data map[string]any) {
	collector().RecordNodeSuccess(executionId, nodeId, nodeType, iteration, data)
}

func RecordNodeFailure(executionId string, nodeId string, nodeType string, iteration int, reason string) {
	collector().RecordNodeFailure(executionId, nodeId, nodeType, iteration, reason)
}

type noopCollector struct{}

func (noopCollector) RecordNodeSuccess(string, string, string, int, map[string]any) {}
func (noopCollector) RecordNodeFailure(string, string, string, int, string)         {}
