package analytics

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ WorkflowDataCollector = new(LogFileDataCollector)

type LogFileDataCollector struct {
	fileName string
	logger   *zap.Logger
}

func NewLogFileDataCollector(fileName string) (*LogFileDataCollector, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(fileEncoder, zapcore.AddSync(logFile), zapcore.InfoLevel)
	return &LogFileDataCollector{
		fileName: fileName,
		logger:   zap.New(core),
	}, nil
}

func (lc *LogFileDataCollector) RecordNodeSuccess(executionId string, nodeId string, nodeType string, iteration int, data map[string]any) {
	lc.logger.Info("success", zap.String("executionId", executionId), zap.String("nodeId", nodeId),
		zap.String("nodeType", nodeType), zap.Int("iteration", iteration), zap.Any("data", data))
}

func (lc *LogFileDataCollector) RecordNodeFailure(executionId string, nodeId string, nodeType string, iteration int, reason string) {
	lc.logger.Info("failure", zap.String("executionId", executionId), zap.String("nodeId", nodeId),
		zap.String("nodeType", nodeType), zap.Int("iteration", iteration), zap.String("reason", reason))
}

func (lc *LogFileDataCollector) Sync() error {
	return lc.logger.Sync()
}
