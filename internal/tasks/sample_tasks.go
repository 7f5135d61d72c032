// Package tasks holds the built-in demo task functions registered by
// cmd/worker/main.go.
package tasks

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/taskqueue/engine/internal/registry"
)

// Register populates reg with the built-in demo task set. Call before
// reg.Freeze().
func Register(reg *registry.Registry) {
	reg.RegisterWithDescription("add_numbers", addNumbers, "Add two numbers: args=[a, b]")
	reg.RegisterWithDescription("multiply_numbers", multiplyNumbers, "Multiply two numbers: args=[a, b]")
	reg.RegisterWithDescription("slow_task", slowTask, "Sleep for kwargs[duration] seconds (default 5), for timeout/monitoring tests")
	reg.RegisterWithDescription("random_task", randomTask, "Generate a random number in kwargs[min_val,max_val] and report its square/parity")
	reg.RegisterWithDescription("failing_task", failingTask, "Fail unless kwargs[should_fail]=false, for exercising the retry path")
	reg.RegisterWithDescription("process_data", processData, "Reduce args[0] (a number list) by kwargs[operation] (sum|avg|max|min)")
}

func addNumbers(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	a, b, err := twoFloats(args)
	if err != nil {
		return nil, err
	}
	return a + b, nil
}

func multiplyNumbers(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	a, b, err := twoFloats(args)
	if err != nil {
		return nil, err
	}
	return a * b, nil
}

func twoFloats(args []interface{}) (float64, float64, error) {
	if len(args) < 2 {
		return 0, 0, fmt.Errorf("expected two numeric args, got %d", len(args))
	}
	a, ok1 := toFloat(args[0])
	b, ok2 := toFloat(args[1])
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("args must be numbers")
	}
	return a, b, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func slowTask(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	duration := 5
	if d, ok := kwargs["duration"]; ok {
		if f, ok := toFloat(d); ok {
			duration = int(f)
		}
	}
	message, _ := kwargs["message"].(string)
	if message == "" {
		message = "Processing..."
	}

	time.Sleep(time.Duration(duration) * time.Second)
	return fmt.Sprintf("Completed: %s after %d seconds", message, duration), nil
}

func randomTask(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	minVal, maxVal := 1, 100
	if v, ok := kwargs["min_val"]; ok {
		if f, ok := toFloat(v); ok {
			minVal = int(f)
		}
	}
	if v, ok := kwargs["max_val"]; ok {
		if f, ok := toFloat(v); ok {
			maxVal = int(f)
		}
	}
	if maxVal < minVal {
		return nil, fmt.Errorf("max_val must be >= min_val")
	}

	number := minVal + rand.Intn(maxVal-minVal+1)
	return map[string]interface{}{
		"number":  number,
		"square":  number * number,
		"is_even": number%2 == 0,
		"range":   fmt.Sprintf("%d-%d", minVal, maxVal),
	}, nil
}

func failingTask(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	shouldFail := true
	if v, ok := kwargs["should_fail"].(bool); ok {
		shouldFail = v
	}
	if shouldFail {
		msg, _ := kwargs["error_message"].(string)
		if msg == "" {
			msg = "Task failed intentionally"
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return "Task completed successfully", nil
}

func processData(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("data list cannot be empty")
	}
	raw, ok := args[0].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("data list cannot be empty")
	}

	data := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("all data items must be numbers")
		}
		data = append(data, f)
	}

	operation, _ := kwargs["operation"].(string)
	if operation == "" {
		operation = "sum"
	}

	result := map[string]interface{}{
		"operation":  operation,
		"data_count": len(data),
	}

	switch operation {
	case "sum":
		result["result"] = sum(data)
	case "avg":
		result["result"] = sum(data) / float64(len(data))
	case "max":
		result["result"] = max(data)
	case "min":
		result["result"] = min(data)
	default:
		return nil, fmt.Errorf("unsupported operation: %s", operation)
	}

	return result, nil
}

func sum(data []float64) float64 {
	var total float64
	for _, v := range data {
		total += v
	}
	return total
}

func max(data []float64) float64 {
	m := data[0]
	for _, v := range data[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func min(data []float64) float64 {
	m := data[0]
	for _, v := range data[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
