package provider

import (
	"context"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"go.uber.org/zap"
)

var _ Notifier = new(LogNotifier)

type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) NotifyCompletion(_ context.Context, note Notification) error {
	logger.Info("workflow completed", zap.String("executionId", note.ExecutionId), zap.String("userId", note.UserId),
		zap.String("title", note.Title), zap.Strings("documentIds", note.DocumentIds))
	return nil
}
