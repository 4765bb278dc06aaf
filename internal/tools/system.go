package tools

import (
	"context"
	"reflect"

	"github.com/cognidao/membank/internal/memorybank"
)

// HealthCheckInput has no parameters.
type HealthCheckInput struct{}

func systemTools() []*CogniTool {
	return []*CogniTool{
		{
			Name:         ToolHealthCheck,
			Description:  "Ping the SQL store and vector index.",
			InputType:    reflect.TypeOf(HealthCheckInput{}),
			MemoryLinked: true,
			Func:         runHealthCheck,
		},
	}
}

func runHealthCheck(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	return bank.HealthCheck(ctx), nil
}
